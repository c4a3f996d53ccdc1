package asm_test

import (
	"strings"
	"testing"

	"github.com/kiplingw/agni-go/asm"
	"github.com/kiplingw/agni-go/exe"
	"github.com/stretchr/testify/require"
)

func assemble(t *testing.T, source string) exe.Executable {
	t.Helper()
	image, err := asm.Assemble("test.agni", strings.Split(source, "\n"), nil)
	require.NoError(t, err)

	stored, computed, ok, err := exe.VerifyChecksum(image)
	require.NoError(t, err)
	require.True(t, ok, "stored checksum %08x != computed %08x", stored, computed)

	x, err := exe.Decode(image)
	require.NoError(t, err)
	return x
}

func TestSetHostPopulatesHeader(t *testing.T) {
	x := assemble(t, `
		SetHost "demo-host", 2, 1

		Func Main {
			Exit
		}
	`)
	require.NotEqual(t, exe.HostStringIndexNone, x.Header.HostStringIndex)
	require.Equal(t, "demo-host", x.Strings[x.Header.HostStringIndex])
	require.EqualValues(t, 2, x.Header.HostMajor)
	require.EqualValues(t, 1, x.Header.HostMinor)
}

func TestMissingDirectivesFallBackToDefaults(t *testing.T) {
	x := assemble(t, `
		Func Main {
			Exit
		}
	`)
	require.Equal(t, exe.HostStringIndexNone, x.Header.HostStringIndex)
	require.Equal(t, exe.StackSizeDefault, x.Header.StackSize)
	require.Equal(t, exe.PriorityLow, x.Header.ThreadPriorityType)
}

func TestMainFunctionIsCaseInsensitivelyRecognized(t *testing.T) {
	x := assemble(t, `
		Func mAiN {
			Exit
		}
	`)
	require.NotEqual(t, exe.MainIndexNone, x.Header.MainIndex)
	require.Equal(t, "mAiN", x.Functions[x.Header.MainIndex].Name)
}

func TestNonMainFunctionTerminatesWithRet(t *testing.T) {
	x := assemble(t, `
		Func Main {
			Call Helper
		}

		Func Helper {
			Mov _RegisterReturn, 7
		}
	`)
	// Helper is declared last, so its auto-appended terminator is the
	// final instruction in the whole stream, and it must be Ret (Main's
	// own terminator is Exit instead, per the reference assembler's
	// name-is-Main special case).
	last := x.Instructions[len(x.Instructions)-1]
	require.Equal(t, "Ret", last.Opcode.String())

	var mainExit bool
	for _, instr := range x.Instructions[:len(x.Instructions)-1] {
		if instr.Opcode.String() == "Exit" {
			mainExit = true
		}
	}
	require.True(t, mainExit, "Main's own terminator must be an auto-appended Exit")
}

func TestGlobalVariablesGetIncreasingAbsoluteIndices(t *testing.T) {
	x := assemble(t, `
		Var a
		Var b

		Func Main {
			Mov a, 1
			Mov b, 2
			Exit
		}
	`)
	require.EqualValues(t, 2, x.Header.GlobalDataSize)

	movA := x.Instructions[0]
	movB := x.Instructions[1]
	require.EqualValues(t, 0, movA.Operands[0].Int)
	require.EqualValues(t, 1, movB.Operands[0].Int)
}

func TestDuplicateVariableIsRejected(t *testing.T) {
	_, err := asm.Assemble("test.agni", strings.Split(`
		Func Main {
			Var x
			Var x
			Exit
		}
	`, "\n"), nil)
	require.Error(t, err)

	var listingErr *asm.ListingError
	require.ErrorAs(t, err, &listingErr)
	require.Equal(t, "test.agni", listingErr.File)
}

func TestArraySizeOfOneIsRejected(t *testing.T) {
	_, err := asm.Assemble("test.agni", strings.Split(`
		Func Main {
			Var x[1]
			Exit
		}
	`, "\n"), nil)
	require.Error(t, err)
}

func TestParamAddressingMatchesPushOrder(t *testing.T) {
	x := assemble(t, `
		Func Main {
			Push 1
			Push 2
			Call Pair
			Exit
		}

		Func Pair {
			Param first
			Param second
			Mov _RegisterReturn, first
			Ret
		}
	`)
	// first (declared first) must resolve to the slot nearest the return
	// address, i.e. the last-pushed argument under the reference engine's
	// reverse-push calling convention. Pair ends with its explicit Ret and
	// then the auto-appended Ret, so the Mov sits third from the end.
	movFirst := x.Instructions[len(x.Instructions)-3]
	require.Equal(t, "Mov", movFirst.Opcode.String())
	require.EqualValues(t, -3, movFirst.Operands[1].Int)
}

func TestLabelAndConditionalJumpResolveToInstructionIndex(t *testing.T) {
	x := assemble(t, `
		Func Main {
			Var x

			Mov x, 0
			Je x, 0, skip
			Mov x, 99
		skip:
			Exit
		}
	`)
	je := x.Instructions[1]
	require.Equal(t, "Je", je.Opcode.String())
	require.EqualValues(t, 3, je.Operands[2].Int)
}
