package sources

import (
	"testing"

	"github.com/rei-strategy/bots/internal/browser"
	"github.com/rei-strategy/bots/internal/config"
)

func TestAllSourcesValidate(t *testing.T) {
	all := All()
	if len(all) != 7 {
		t.Fatalf("registry has %d sources, want 7", len(all))
	}
	for _, src := range all {
		if err := config.ValidateSource(src); err != nil {
			t.Errorf("%s: %v", src.Key, err)
		}
	}
}

func TestPressStepsUseKnownKeys(t *testing.T) {
	for _, src := range All() {
		for i, step := range src.Pre {
			if step.Action != config.StepPress {
				continue
			}
			if !browser.KnownKey(step.Value) {
				t.Errorf("%s: pre step %d presses unknown key %q", src.Key, i, step.Value)
			}
		}
	}
}

func TestAllSortedByKey(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		if all[i-1].Key >= all[i].Key {
			t.Fatalf("registry unsorted at %q >= %q", all[i-1].Key, all[i].Key)
		}
	}
}

func TestByKeyPreservesOrder(t *testing.T) {
	got, err := ByKey("xome_com", "reuben_lublin")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Key != "xome_com" || got[1].Key != "reuben_lublin" {
		t.Errorf("ByKey = %v", got)
	}
}

func TestByKeyUnknown(t *testing.T) {
	if _, err := ByKey("zillow"); err == nil {
		t.Fatal("unknown key must error")
	}
}
