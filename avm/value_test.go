package avm_test

import (
	"testing"

	"github.com/kiplingw/agni-go/avm"
	"github.com/stretchr/testify/require"
)

func TestCloneDeepCopiesOwnedString(t *testing.T) {
	a := avm.String("hello")
	b := a.Clone()

	*b.Str = "mutated"

	require.Equal(t, "hello", *a.Str)
	require.Equal(t, "mutated", *b.Str)
}

func TestToIntCoercesFloatAndString(t *testing.T) {
	f, err := avm.Float(3.9).ToInt()
	require.NoError(t, err)
	require.EqualValues(t, 3, f)

	s, err := avm.String("42abc").ToInt()
	require.NoError(t, err)
	require.EqualValues(t, 42, s)

	junk, err := avm.String("not a number").ToInt()
	require.NoError(t, err)
	require.EqualValues(t, 0, junk)
}

func TestToFloatNeverErrorsOnUnparsableString(t *testing.T) {
	f, err := avm.String("nope").ToFloat()
	require.NoError(t, err)
	require.EqualValues(t, 0, f)

	ok, err := avm.String("  2.5  ").ToFloat()
	require.NoError(t, err)
	require.EqualValues(t, 2.5, ok)
}

func TestToStringRendersIntAndFloat(t *testing.T) {
	s, err := avm.Integer(-7).ToString()
	require.NoError(t, err)
	require.Equal(t, "-7", s)

	f, err := avm.Float(1.5).ToString()
	require.NoError(t, err)
	require.Equal(t, "1.500000", f)
}

func TestRegisterAndStackIndexCoercionsAreRejected(t *testing.T) {
	_, err := avm.Register(avm.RegisterT0).ToInt()
	require.Error(t, err)

	_, err = avm.StackIndexRelative(-2, -6).ToString()
	require.Error(t, err)
}

func TestLookupMnemonicIsCaseInsensitive(t *testing.T) {
	op, ok := avm.LookupMnemonic("mOv")
	require.True(t, ok)
	require.Equal(t, avm.Mov, op)

	_, ok = avm.LookupMnemonic("NotAnOpcode")
	require.False(t, ok)
}

func TestIsConditionalJumpCoversJeFamilyOnly(t *testing.T) {
	require.True(t, avm.Je.IsConditionalJump())
	require.True(t, avm.Jle.IsConditionalJump())
	require.False(t, avm.Jmp.IsConditionalJump())
	require.False(t, avm.Mov.IsConditionalJump())
}

func TestOperandCountMatchesInstructionShape(t *testing.T) {
	require.Equal(t, 2, avm.Mov.OperandCount())
	require.Equal(t, 0, avm.Ret.OperandCount())
	require.Equal(t, 3, avm.SetChar.OperandCount())
}
