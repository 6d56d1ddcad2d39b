package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecord_Email(t *testing.T) {
	assert.Equal(t, "a@x.com", Record{"email": "  a@x.com "}.Email())
	assert.Equal(t, "", Record{"name": "Ann"}.Email())
}

func TestRecord_WithDefaults(t *testing.T) {
	r := Record{"email": "a@x.com", "name": "", "company": "Acme", "extra": "keep"}

	out := r.WithDefaults(DefaultFields())

	assert.Equal(t, "Hiring Manager", out["name"], "empty field takes default")
	assert.Equal(t, "Acme", out["company"], "present field wins")
	assert.Equal(t, "your sector", out["sector"], "missing field takes default")
	assert.Equal(t, "keep", out["extra"])
	assert.Equal(t, "", r["name"], "original record is not modified")
}

func TestRecord_Get(t *testing.T) {
	r := Record{"name": "Ann", "city": "  "}

	v, ok := r.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Ann", v)

	_, ok = r.Get("city")
	assert.False(t, ok, "blank values count as missing")

	_, ok = r.Get("company")
	assert.False(t, ok)
}

func TestBatchStats_Processed(t *testing.T) {
	s := BatchStats{Total: 5, Sent: 2, Failed: 1, Skipped: 1}
	assert.Equal(t, 4, s.Processed())
}
