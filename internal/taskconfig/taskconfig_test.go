package taskconfig

import "testing"

func TestLoadJSONWithSubstitution(t *testing.T) {
	raw := []byte(`{"id":"{{task_id}}","name":"web","user":"{{user}}","ports":{"http":{{ports[http]}}}}`)
	ctx := Context{TaskID: "t1", User: "u", Ports: map[string]int{"http": 8080}}

	cfg, err := Load(raw, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ID != "t1" || cfg.User != "u" || cfg.Ports["http"] != 8080 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	raw := []byte("id: t1\nname: web\nuser: u\nports:\n  http: 8080\n")
	cfg, err := Load(raw, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "web" || cfg.Ports["http"] != 8080 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
