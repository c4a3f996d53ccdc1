package vm_test

import (
	"strings"
	"testing"
	"time"

	"github.com/kiplingw/agni-go/asm"
	"github.com/kiplingw/agni-go/avm"
	"github.com/kiplingw/agni-go/vm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// assemble is the shared test helper: lex/compile source text into an
// executable image.
func assemble(t *testing.T, source string) []byte {
	t.Helper()
	image, err := asm.Assemble("test.agni", strings.Split(source, "\n"), nil)
	require.NoError(t, err)
	return image
}

// loadAndRun assembles source, loads it into a fresh VM, resets and starts
// it, then drives the scheduler to completion. Returns the machine and
// handle so the caller can inspect registers/return values.
func loadAndRun(t *testing.T, source string) (*vm.VM, vm.Handle) {
	t.Helper()
	image := assemble(t, source)

	m := vm.New("test-host", 1, 0, nil)
	h, status := m.LoadScript(image)
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(h))
	require.True(t, m.StartScript(h))
	m.RunScripts(vm.RunIndefinitely)
	return m, h
}

func TestArithmeticAndExit(t *testing.T) {
	src := `
		Var result

		Func Main {
			Mov result, 10
			Add result, 5
			Mul result, 2
			Mov _RegisterReturn, result
			Exit
		}
	`
	m, h := loadAndRun(t, src)
	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.EqualValues(t, 30, n)
}

func TestFloatArithmeticDispatchesOnSourceType(t *testing.T) {
	// Add's dispatch rule keys off the SOURCE operand's type, so a float
	// destination adding a float source takes the float branch end to end.
	src := `
		Var x

		Func Main {
			Mov x, 2.5
			Add x, 1.5
			Mov _RegisterReturn, x
			Exit
		}
	`
	m, h := loadAndRun(t, src)
	f, ok := m.GetReturnValueAsFloat(h)
	require.True(t, ok)
	require.InDelta(t, 4.0, f, 0.0001)
}

func TestStringConcatAndChars(t *testing.T) {
	src := `
		Var greeting

		Func Main {
			Mov greeting, "Hell"
			Concat greeting, "o"
			SetChar greeting, 0, "J"
			Mov _RegisterReturn, greeting
			Exit
		}
	`
	m, h := loadAndRun(t, src)
	s, ok := m.GetReturnValueAsString(h)
	require.True(t, ok)
	require.Equal(t, "Jello", s)
}

func TestArrayIndexingByConstantAndVariable(t *testing.T) {
	src := `
		Func Main {
			Var items[4]
			Var i

			Mov items[0], 42
			Mov i, 0
			Mov _RegisterReturn, items[i]
			Exit
		}
	`
	m, h := loadAndRun(t, src)
	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.EqualValues(t, 42, n)
}

func TestCallAndReturnUnwindsFrame(t *testing.T) {
	src := `
		Func Double {
			Param n
			Mov _RegisterReturn, n
			Mul _RegisterReturn, 2
			Ret
		}

		Func Main {
			Var result
			Push 21
			Call Double
			Mov result, _RegisterReturn
			Mov _RegisterReturn, result
			Exit
		}
	`
	m, h := loadAndRun(t, src)
	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.EqualValues(t, 42, n)
}

func TestConditionalJumpSkipsOnFalse(t *testing.T) {
	src := `
		Func Main {
			Var x
			Mov x, 1

			Mov _RegisterReturn, 111
			Je x, 2, skip
			Mov _RegisterReturn, 222
		skip:
			Exit
		}
	`
	m, h := loadAndRun(t, src)
	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.EqualValues(t, 222, n)
}

func TestLoopWithDecrementAndConditionalJump(t *testing.T) {
	src := `
		Func Main {
			Var counter
			Var total
			Mov counter, 5
			Mov total, 0
		loop:
			Add total, counter
			Dec counter
			Jg counter, 0, loop
			Mov _RegisterReturn, total
			Exit
		}
	`
	m, h := loadAndRun(t, src)
	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.EqualValues(t, 15, n)
}

func TestCallHostInvokesRegisteredFunction(t *testing.T) {
	src := `
		Func Main {
			Push 4
			Push 5
			CallHost AddTwoInts
			Exit
		}
	`
	image := assemble(t, src)
	m := vm.New("test-host", 1, 0, nil)
	h, status := m.LoadScript(image)
	require.Equal(t, vm.Ok, status)

	var gotA, gotB int32
	err := m.RegisterHostFunction(vm.GlobalVisibility, "AddTwoInts", func(v *vm.VM, script vm.Handle) error {
		a, _ := v.GetParameterAsInt(script, 0)
		b, _ := v.GetParameterAsInt(script, 1)
		gotA, gotB = a, b
		v.ReturnIntFromHost(script, 2, a+b)
		return nil
	})
	require.NoError(t, err)

	require.True(t, m.ResetScript(h))
	require.True(t, m.StartScript(h))
	m.RunScripts(vm.RunIndefinitely)

	require.EqualValues(t, 5, gotA)
	require.EqualValues(t, 4, gotB)
}

func TestCallHostWithUnregisteredNameIsSilentNoOp(t *testing.T) {
	// Host functions are looked up by name each time CallHost executes, so
	// a CallHost naming a function nobody registered does not fault the script, it just does
	// nothing and execution continues.
	src := `
		Func Main {
			CallHost NeverRegistered
			Mov _RegisterReturn, 7
			Exit
		}
	`
	m, h := loadAndRun(t, src)
	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.EqualValues(t, 7, n)
}

func TestHostFunctionErrorFaultsTheCallingScript(t *testing.T) {
	src := `
		Func Main {
			CallHost AlwaysFails
			Mov _RegisterReturn, 99
			Exit
		}
	`
	image := assemble(t, src)
	m := vm.New("test-host", 1, 0, nil)
	h, status := m.LoadScript(image)
	require.Equal(t, vm.Ok, status)

	err := m.RegisterHostFunction(vm.GlobalVisibility, "AlwaysFails", func(v *vm.VM, script vm.Handle) error {
		return errors.New("host blew up")
	})
	require.NoError(t, err)

	require.True(t, m.ResetScript(h))
	require.True(t, m.StartScript(h))

	done := m.RunScripts(vm.RunIndefinitely)
	require.True(t, done)

	// The script faulted before reaching Mov/Exit, so its return register
	// was never written with the post-fault value.
	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.NotEqualValues(t, 99, n)
}

func TestIntegerDivisionByZeroFaultsOnlyThatScript(t *testing.T) {
	src := `
		Func Main {
			Var x
			Mov x, 1
			Div x, 0
			Exit
		}
	`
	image := assemble(t, src)
	m := vm.New("test-host", 1, 0, nil)
	h, status := m.LoadScript(image)
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(h))
	require.True(t, m.StartScript(h))

	otherSrc := `
		Func Main {
			Mov _RegisterReturn, 7
			Exit
		}
	`
	other, status := m.LoadScript(assemble(t, otherSrc))
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(other))
	require.True(t, m.StartScript(other))

	done := m.RunScripts(vm.RunIndefinitely)
	require.True(t, done)

	// The second script keeps running after the first one faults.
	n, ok := m.GetReturnValueAsInt(other)
	require.True(t, ok)
	require.EqualValues(t, 7, n)
}

func TestBlockingCallFunctionReturnsSynchronously(t *testing.T) {
	src := `
		Func AddOne {
			Param n
			Mov _RegisterReturn, n
			Inc _RegisterReturn
			Ret
		}

		Func Main {
			Exit
		}
	`
	image := assemble(t, src)
	m := vm.New("test-host", 1, 0, nil)
	h, status := m.LoadScript(image)
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(h))

	require.True(t, m.PassIntParameter(h, 41))
	require.True(t, m.CallFunction(h, "AddOne"))

	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.EqualValues(t, 42, n)
}

func TestBlockingCallFunctionReturnsOnFaultEvenWithAnotherScriptExecuting(t *testing.T) {
	// A second, unrelated script is loaded and left executing so that
	// anyExecuting() stays true for as long as the process runs. If
	// CallFunction's single-threading mode ever fell back to that
	// registry-wide check instead of noticing its own pinned thread
	// stopped, this call would never return.
	busySrc := `
		Func Main {
		loop:
			Jmp loop
		}
	`
	m := vm.New("test-host", 1, 0, nil)
	bh, status := m.LoadScript(assemble(t, busySrc))
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(bh))
	require.True(t, m.StartScript(bh))

	faultingSrc := `
		Func DivideByZero {
			Var x
			Mov x, 1
			Div x, 0
			Mov _RegisterReturn, 123
			Ret
		}

		Func Main {
			Exit
		}
	`
	h, status := m.LoadScript(assemble(t, faultingSrc))
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(h))

	done := make(chan bool, 1)
	go func() { done <- m.CallFunction(h, "DivideByZero") }()

	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("CallFunction did not return after the called function faulted")
	}

	// The return register was never written, so it is still null and does
	// not coerce to an integer.
	n, ok := m.GetReturnValueAsInt(h)
	require.False(t, ok)
	require.NotEqualValues(t, 123, n)
}

func TestAsyncCallFunctionRunsOnNextSchedulerTurn(t *testing.T) {
	src := `
		Func SetAnswer {
			Mov _RegisterReturn, 99
			Ret
		}

		Func Main {
			Exit
		}
	`
	image := assemble(t, src)
	m := vm.New("test-host", 1, 0, nil)
	h, status := m.LoadScript(image)
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(h))

	require.True(t, m.CallFunctionAsync(h, "SetAnswer"))
	m.RunScripts(vm.RunIndefinitely)

	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.EqualValues(t, 99, n)
}

func TestPauseScriptSuspendsWithoutStoppingOtherScripts(t *testing.T) {
	pausingSrc := `
		Func Main {
			Pause 60000
			Mov _RegisterReturn, 1
			Exit
		}
	`
	busySrc := `
		Func Main {
			Var counter
			Mov counter, 0
		loop:
			Inc counter
			Jl counter, 3, loop
			Mov _RegisterReturn, counter
			Exit
		}
	`
	m := vm.New("test-host", 1, 0, nil)

	pausedHandle, status := m.LoadScript(assemble(t, pausingSrc))
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(pausedHandle))
	require.True(t, m.StartScript(pausedHandle))

	busyHandle, status := m.LoadScript(assemble(t, busySrc))
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(busyHandle))
	require.True(t, m.StartScript(busyHandle))

	m.RunScripts(50)

	n, ok := m.GetReturnValueAsInt(busyHandle)
	require.True(t, ok)
	require.EqualValues(t, 3, n)
}

func TestNotifyAsyncWakesPausedScript(t *testing.T) {
	src := `
		Func Main {
			Pause 60000
			Mov _RegisterReturn, 123
			Exit
		}
	`
	image := assemble(t, src)
	m := vm.New("test-host", 1, 0, nil)
	h, status := m.LoadScript(image)
	require.Equal(t, vm.Ok, status)
	require.True(t, m.ResetScript(h))
	require.True(t, m.StartScript(h))

	// Run briefly so the script executes its Pause and is paused when the
	// notification arrives.
	m.RunScripts(10)

	require.True(t, m.NotifyAsync(h, nil))
	m.RunScripts(vm.RunIndefinitely)

	n, ok := m.GetReturnValueAsInt(h)
	require.True(t, ok)
	require.EqualValues(t, 123, n)
}

func TestUnloadScriptFreesHandle(t *testing.T) {
	src := `
		Func Main {
			Exit
		}
	`
	image := assemble(t, src)
	m := vm.New("test-host", 1, 0, nil)
	h, status := m.LoadScript(image)
	require.Equal(t, vm.Ok, status)

	m.UnloadScript(h)
	require.False(t, m.StartScript(h))
}

func TestWrongHostIsRejectedAtLoad(t *testing.T) {
	src := `
		SetHost "some-other-host", 1, 0

		Func Main {
			Exit
		}
	`
	image := assemble(t, src)
	m := vm.New("test-host", 1, 0, nil)
	_, status := m.LoadScript(image)
	require.Equal(t, vm.WrongHost, status)
}

func TestRegisterValueCarriesRegisterKind(t *testing.T) {
	// Sanity check that avm.Value's register constructor tags Kind
	// correctly, since the interpreter's resolve/set path branches on it.
	v := avm.Register(avm.RegisterT0)
	require.Equal(t, avm.KindRegister, v.Kind)
}
