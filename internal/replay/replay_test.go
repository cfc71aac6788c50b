package replay

import (
	"testing"

	"github.com/go-rod/rod/lib/input"
	"github.com/stretchr/testify/assert"

	"github.com/v0xg/sessionrec/internal/action"
)

func TestSkipReason(t *testing.T) {
	target := &action.Target{Tag: "input", Selector: "#q"}
	checked := true

	tests := []struct {
		name string
		rec  action.Record
		skip bool
	}{
		{"click", action.Record{Kind: action.KindClick, Target: target}, false},
		{"no target", action.Record{Kind: action.KindClick}, true},
		{"scroll without target", action.Record{Kind: action.KindScroll}, false},
		{"submit", action.Record{Kind: action.KindSubmit, Target: target}, true},
		{"blur", action.Record{Kind: action.KindBlur, Target: target}, true},
		{"plain input", action.Record{Kind: action.KindInput, Target: target, Payload: action.Payload{Value: "shoes"}}, false},
		{"masked input", action.Record{Kind: action.KindInput, Target: target, Payload: action.Payload{Value: "******"}}, true},
		{"masked email", action.Record{Kind: action.KindChange, Target: target, Payload: action.Payload{Value: "j***@corp.com"}}, true},
		{"checkbox", action.Record{Kind: action.KindChange, Target: target, Payload: action.Payload{Value: "on", Checked: &checked}}, false},
		{"enter", action.Record{Kind: action.KindKeyPress, Target: target, Payload: action.Payload{Key: "Enter"}}, false},
		{"arrow", action.Record{Kind: action.KindKeyPress, Target: target, Payload: action.Payload{Key: "ArrowUp"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.skip, skipReason(tt.rec) != "")
		})
	}
}

func TestKeyFor(t *testing.T) {
	k, ok := keyFor("Tab")
	assert.True(t, ok)
	assert.Equal(t, input.Tab, k)

	_, ok = keyFor("a")
	assert.False(t, ok)
}

func TestSameDocument(t *testing.T) {
	assert.True(t, sameDocument("https://a.test/x#top", "https://a.test/x"))
	assert.False(t, sameDocument("https://a.test/x", "https://a.test/y"))
}
