package main

import "testing"

func TestRootCommand_Flags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"config", "listen", "seed"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s is not registered", name)
		}
	}
	if cmd.Flags().ShorthandLookup("c") == nil {
		t.Error("-c should be the shorthand of --config")
	}
}
