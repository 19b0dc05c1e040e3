package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	cases := []struct {
		bytes int64
		want  string
	}{
		{500, "500 B"},
		{2048, "2.0 KB"},
		{5 * sizeMB, "5.0 MB"},
		{3 * sizeGB, "3.0 GB"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, formatSize(c.bytes))
	}
}

func TestFormatTimeSameYearOmitsYear(t *testing.T) {
	now := time.Now()
	got := formatTime(now)

	assert.NotContains(t, got, now.Format("2006"))
}

func TestPrintTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"Name", "Size"}, [][]string{
		{"a.txt", "1 B"},
		{"much-longer-name.txt", "2 KB"},
	})

	out := buf.String()
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "much-longer-name.txt")
}
