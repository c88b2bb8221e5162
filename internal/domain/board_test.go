package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoardConfig_Link(t *testing.T) {
	b := BoardConfig{LinkBase: "https://cafe.naver.com/hatopia/"}
	assert.Equal(t, "https://cafe.naver.com/hatopia/101", b.Link(101))
	assert.Equal(t, b.Link(101), b.Link(101))
	assert.NotEqual(t, b.Link(101), b.Link(102))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10, "…"))
	assert.Equal(t, "exactly10!", Truncate("exactly10!", 10, "…"))
	assert.Equal(t, "하토피아…", Truncate("하토피아 공지사항", 4, "…"))
	assert.Equal(t, "ab...", Truncate("ab cd", 3, "..."))
	assert.Equal(t, "unbounded", Truncate("unbounded", 0, "…"))
}

func TestAnnouncement_Heading(t *testing.T) {
	a := Announcement{BoardName: "Notice", Title: "Maintenance"}
	assert.Equal(t, "[Notice] Maintenance", a.Heading())
}

func TestSeenState_Clone(t *testing.T) {
	s := SeenState{"a": "1"}
	c := s.Clone()
	c["a"] = "2"
	assert.Equal(t, "1", s["a"])
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "seed", Seed.String())
	assert.Equal(t, "announce", Announce.String())
	assert.Equal(t, "no_change", NoChange.String())
}
