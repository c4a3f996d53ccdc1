package exe_test

import (
	"testing"

	"github.com/kiplingw/agni-go/avm"
	"github.com/kiplingw/agni-go/exe"
	"github.com/stretchr/testify/require"
)

func sampleExecutable() exe.Executable {
	return exe.Executable{
		Header: exe.MainHeader{
			AvailableMajor:  1,
			AvailableMinor:  0,
			RequiredMajor:   1,
			RequiredMinor:   0,
			HostStringIndex: exe.HostStringIndexNone,
			StackSize:       exe.StackSizeDefault,
			GlobalDataSize:  1,
			MainIndex:       0,
		},
		Instructions: []exe.Instruction{
			{Opcode: avm.Mov, Operands: []exe.Operand{
				{Type: exe.OperandStackIndexAbsolute, Int: 0},
				{Type: exe.OperandInteger, Int: 42},
			}},
			{Opcode: avm.Mov, Operands: []exe.Operand{
				{Type: exe.OperandStackIndexRelative, Base: -2, OffsetSlot: -6},
			}},
			{Opcode: avm.Exit},
		},
		Strings: []string{"hello"},
		Functions: []exe.FunctionEntry{
			{EntryPoint: 0, ParameterCount: 0, LocalDataSize: 0, Name: "Main"},
		},
		HostFunctions: []exe.HostFunctionEntry{{Name: "Print"}},
	}
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	want := sampleExecutable()

	image, err := exe.Encode(want)
	require.NoError(t, err)
	require.True(t, exe.CheckSignature(image))

	got, err := exe.Decode(image)
	require.NoError(t, err)

	require.Equal(t, want.Header.GlobalDataSize, got.Header.GlobalDataSize)
	require.Equal(t, want.Strings, got.Strings)
	require.Equal(t, len(want.Instructions), len(got.Instructions))
	require.Equal(t, want.Instructions[0].Opcode, got.Instructions[0].Opcode)
	require.Equal(t, want.Instructions[1].Operands[0].Base, got.Instructions[1].Operands[0].Base)
	require.Equal(t, want.Instructions[1].Operands[0].OffsetSlot, got.Instructions[1].Operands[0].OffsetSlot)
	require.Equal(t, want.Functions[0].Name, got.Functions[0].Name)
	require.Equal(t, want.HostFunctions[0].Name, got.HostFunctions[0].Name)
}

func TestEncodePatchesVerifiableChecksum(t *testing.T) {
	image, err := exe.Encode(sampleExecutable())
	require.NoError(t, err)

	stored, computed, ok, err := exe.VerifyChecksum(image)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, computed, stored)
}

func TestCorruptedByteInvalidatesChecksum(t *testing.T) {
	image, err := exe.Encode(sampleExecutable())
	require.NoError(t, err)

	image[len(image)-1] ^= 0xFF

	_, _, ok, err := exe.VerifyChecksum(image)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckSignatureRejectsForeignData(t *testing.T) {
	require.False(t, exe.CheckSignature([]byte("not an agni file")))
	require.False(t, exe.CheckSignature(nil))
}

func TestDecodeReportsTruncatedImage(t *testing.T) {
	image, err := exe.Encode(sampleExecutable())
	require.NoError(t, err)

	_, err = exe.Decode(image[:4])
	require.Error(t, err)
}

func TestCRCMatchesKnownReferenceVector(t *testing.T) {
	// Hand-traced against the bit-serial algorithm in CAgni.cpp: with a
	// zero initial register, 8 zero bits never flip a top bit out, so the
	// register stays zero.
	require.EqualValues(t, 0, exe.CRC([]byte{0x00}))

	// 8 one-bits from a zero register shift in without the register ever
	// growing past bit 7, so no top-bit XOR with the key fires either;
	// the register ends up simply 0xFF.
	require.EqualValues(t, 0xFF, exe.CRC([]byte{0xFF}))
}
