package rvasm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func word(img *Image, i int) uint32 {
	return binary.LittleEndian.Uint32(img.Text[i*4:])
}

func TestEncodings(t *testing.T) {
	specs := []struct {
		inst uint32
		exp  uint32
	}{
		{Addi(A0, A0, 1), 0x00150513},
		{Addi(SP, SP, -16), 0xff010113},
		{Lui(A0, 0x12345000), 0x12345537},
		{Ld(RA, SP, 8), 0x00813083},
		{Sd(RA, SP, 8), 0x00113423},
		{Jalr(Zero, RA, 0), 0x00008067},
		{Add(A0, A1, A2), 0x00c58533},
		{Sub(A0, A1, A2), 0x40c58533},
		{Mul(A0, A1, A2), 0x02c58533},
		{Ecall(), 0x00000073},
		{Sret(), 0x10200073},
		{SfenceVMA(Zero, Zero), 0x12000073},
		{Csrrw(SP, 0x140, SP), 0x14011173},
		{Csrr(T0, 0x142), 0x142022f3},
		{Beq(A0, Zero, 8), 0x00050463},
		{Jal(Zero, -4), 0xffdff06f},
		{Srai(A0, A0, 3), 0x40355513},
	}

	for specIndex, spec := range specs {
		if spec.inst != spec.exp {
			t.Errorf("[spec %d] expected encoding %#08x; got %#08x", specIndex, spec.exp, spec.inst)
		}
	}
}

func TestAssembleResolvesLabels(t *testing.T) {
	p := New()
	p.Emit(Nop())
	p.Label("_start")
	p.La(A0, "msg")
	p.BeqzL(A0, "_start")
	p.J("end")
	p.Emit(Nop())
	p.Label("end")
	p.Emit(Ecall())
	p.String("msg", "hi")

	img, err := p.Assemble(0x1000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1004), img.Entry)
	require.Equal(t, uint64(0x2000), img.DataBase)
	require.Equal(t, []byte("hi\x00"), img.Data)

	// auipc a0, 1 ; addi a0, a0, -4 reaches 0x2000 from 0x1004
	require.Equal(t, Auipc(A0, 0x1000), word(img, 1))
	require.Equal(t, Addi(A0, A0, -4), word(img, 2))
	require.Equal(t, Beq(A0, Zero, -8), word(img, 3))
	require.Equal(t, Jal(Zero, 8), word(img, 4))

	addr, ok := p.Symbol(img, "end")
	require.True(t, ok)
	require.Equal(t, uint64(0x1018), addr)
	require.Equal(t, uint64(28), p.TextSize())
}

func TestAssembleErrors(t *testing.T) {
	p := New()
	p.J("nowhere")
	_, err := p.Assemble(0)
	require.Error(t, err)

	p = New()
	p.Label("a")
	p.Label("a")
	_, err = p.Assemble(0)
	require.Error(t, err)

	p = New()
	p.BeqzL(A0, "far")
	for i := 0; i < 2048; i++ {
		p.Emit(Nop())
	}
	p.Label("far")
	_, err = p.Assemble(0)
	require.Error(t, err)
}
