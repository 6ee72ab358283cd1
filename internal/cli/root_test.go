package cli

import (
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"init", "serve", "analyze", "history", "test-alert", "report", "doctor"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
	for _, flag := range []string{"config", "env-file"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestRootCommandVersion(t *testing.T) {
	stdout, _, err := execute(t, newRootCmd(), "--version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(stdout) != "sentinel version "+version {
		t.Fatalf("unexpected version output %q", stdout)
	}
}

func TestRootCommandConfigFlagReachesLoader(t *testing.T) {
	_, dir := testLoader(t)
	stubCollaborators(t, &fakeCompleter{}, &recordingNotifier{}, nil)
	cfgPath := dir + "/custom.yml"
	writeFile(t, cfgPath, "dataDir: "+dir+"/from-file\n")

	stdout, _, err := execute(t, newRootCmd(), "--config", cfgPath, "--env-file", dir+"/none.env", "init")
	if err != nil {
		t.Fatalf("init via root failed: %v", err)
	}
	if !strings.Contains(stdout, dir+"/from-file") {
		t.Fatalf("expected data dir from config file, got:\n%s", stdout)
	}
}
