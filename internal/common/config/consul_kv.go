package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/consul/api"
)

// DefaultKVPrefix 引擎在 Consul KV 里的配置前缀。
// 一个实例一份配置，key 形如 fleeteats/config/order-engine。
const DefaultKVPrefix = "fleeteats/config/"

// KVKey 把实例名换算为约定的 KV key；已经带路径的 key 原样返回。
func KVKey(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return DefaultKVPrefix + name
}

// LoadConfigFromConsulKV 从 Consul KV 读取 JSON 配置并解析为 Config。
//
// 约定：
// - key 可以是裸实例名（自动补 DefaultKVPrefix）或完整路径
// - value 必须是 JSON，在 defaultConfig 的基础上覆盖，缺失的段保留默认值
// - 该函数只负责"读取 + 解析"，是否做动态 watch 由上层决定
func LoadConfigFromConsulKV(consulHost string, consulPort int, key string) (*Config, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("consul kv key is empty")
	}
	key = KVKey(key)

	c, err := api.NewClient(&api.Config{
		Address: fmt.Sprintf("%s:%d", consulHost, consulPort),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	pair, _, err := c.KV().Get(key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get consul kv key=%s: %w", key, err)
	}
	if pair == nil || len(pair.Value) == 0 {
		return nil, fmt.Errorf("consul kv key=%s is empty or not found", key)
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(pair.Value, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consul kv json key=%s: %w", key, err)
	}
	return cfg, nil
}
