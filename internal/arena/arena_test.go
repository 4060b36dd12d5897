package arena

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/mechpack/internal/device"
)

func TestArenaLayoutOrderAndStride(t *testing.T) {
	t.Parallel()
	dev := device.NewHost(0)
	a, err := New[float64](dev, 3, 8, 2, 2)
	require.NoError(t, err)
	defer func() { _ = a.Free() }()
	require.NoError(t, a.Fill(math.NaN()))

	w, err := a.AppendChunk("weight", []float64{1, 2, 3, 4})
	require.NoError(t, err)
	c, err := a.AppendConst("g", 0.5)
	require.NoError(t, err)
	g, err := a.AppendScalars("globals", []float64{7, 9})
	require.NoError(t, err)

	assert.Equal(t, 0, w.Offset())
	assert.Equal(t, 8, c.Offset())
	assert.Equal(t, 16, g.Offset())
	assert.Equal(t, 18, a.Cursor())
	assert.Equal(t, a.Size(), a.Cursor())
	assert.Equal(t, w.Addr()+uint64(8*8), c.Addr())

	all, err := device.Read(device.PtrTo[float64](a.Buffer(), 0), a.Size())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, all[0:3])
	assert.True(t, math.IsNaN(all[3]), "padding keeps fill value")
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, all[8:11])
	assert.Equal(t, []float64{7, 9}, all[16:18])

	regions := a.Regions()
	require.Len(t, regions, 3)
	assert.Equal(t, Region{Name: "globals", Offset: 16, Len: 2, Stride: 2}, regions[2])
	for i := 1; i < len(regions); i++ {
		prev := regions[i-1]
		assert.LessOrEqual(t, prev.Offset+prev.Stride, regions[i].Offset, "regions overlap")
	}
}

func TestArenaSealsAfterScalars(t *testing.T) {
	t.Parallel()
	a, err := New[int32](device.NewHost(0), 2, 4, 2, 1)
	require.NoError(t, err)
	defer func() { _ = a.Free() }()

	_, err = a.AppendScalars("tail", []int32{1})
	require.NoError(t, err)
	_, err = a.AppendConst("late", 3)
	require.ErrorIs(t, err, ErrSealed)
}

func TestArenaRejectsOverflow(t *testing.T) {
	t.Parallel()
	a, err := New[int32](device.NewHost(0), 2, 4, 1, 0)
	require.NoError(t, err)
	defer func() { _ = a.Free() }()

	_, err = a.AppendConst("first", 1)
	require.NoError(t, err)
	_, err = a.AppendConst("second", 1)
	require.ErrorIs(t, err, ErrFull)
}

func TestArenaShortChunk(t *testing.T) {
	t.Parallel()
	a, err := New[int32](device.NewHost(0), 3, 4, 1, 0)
	require.NoError(t, err)
	defer func() { _ = a.Free() }()

	_, err = a.AppendChunk("short", []int32{1, 2})
	require.Error(t, err)
	assert.Equal(t, 0, a.Cursor())
}

func TestArenaZeroWidth(t *testing.T) {
	t.Parallel()
	dev := device.NewHost(0)
	a, err := New[float64](dev, 0, 0, 3, 0)
	require.NoError(t, err)
	assert.Nil(t, a.Buffer())

	p, err := a.AppendConst("p", 1)
	require.NoError(t, err)
	assert.True(t, p.IsNil())
	_, err = a.AppendChunk("c", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, dev.Live())
	require.NoError(t, a.Free())
}

func TestArenaWidthBeyondStride(t *testing.T) {
	t.Parallel()
	_, err := New[float64](device.NewHost(0), 5, 4, 1, 0)
	require.Error(t, err)
}
