package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fenwerk/dispatch-go/internal/board"
)

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{100, "1.00"},
		{120050, "1,200.50"},
		{123456789, "1,234,567.89"},
		{-4599, "-45.99"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatCents(tt.cents), "cents %d", tt.cents)
	}
}

func TestVisibleLen(t *testing.T) {
	assert.Equal(t, 5, visibleLen("hello"))
	assert.Equal(t, 5, visibleLen(ansiDim+"hello"+ansiReset))
	assert.Equal(t, 0, visibleLen(""))
	assert.Equal(t, 0, visibleLen(ansiRed+ansiReset))
}

func TestPrintTableAlignment(t *testing.T) {
	var sb strings.Builder

	printTable(&sb, []string{"id", "order"}, [][]string{
		{"1", "A-42"},
		{"10", ansiDim + "A-7" + ansiReset},
	})

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "id  order", lines[0])
	assert.Equal(t, "--  -----", lines[1])
	assert.Equal(t, "1   A-42", lines[2])

	// ANSI codes must not disturb the column math.
	assert.Equal(t, "10  "+ansiDim+"A-7"+ansiReset, lines[3])
}

func TestContainerOf(t *testing.T) {
	batch := &board.CalendarBatch{
		Deliveries: []board.Delivery{
			{ID: "d1", Members: []board.Member{{ID: 42}}},
		},
		Unassigned: []board.Order{{ID: 7}},
	}

	src, err := containerOf(batch, 42)
	assert.NoError(t, err)
	assert.Equal(t, board.DeliveryRef("d1"), src)

	src, err = containerOf(batch, 7)
	assert.NoError(t, err)
	assert.True(t, src.Pool)

	_, err = containerOf(batch, 99)
	assert.Error(t, err)
}
