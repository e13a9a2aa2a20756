package config

import "testing"

func TestKVKeyAppliesEnginePrefix(t *testing.T) {
	if got := KVKey("order-engine"); got != "fleeteats/config/order-engine" {
		t.Fatalf("unexpected key: %s", got)
	}
	// 带路径的 key 不加前缀
	if got := KVKey("custom/path/engine"); got != "custom/path/engine" {
		t.Fatalf("prefixed key must be returned as-is, got %s", got)
	}
}
