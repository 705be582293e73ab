package bootstrap

import (
	"strings"
	"testing"
)

func TestStatusConfig_MasksSecrets(t *testing.T) {
	cfg := AppConfig{
		MongoURI:        "mongodb://user:hunter2@db:27017",
		APIKey:          "live-api-key-0123456789",
		MediaSigningKey: "signing-key-0123456789abcdef0123456789",
		StorageType:     "local",
	}
	groups := statusConfig(nil, cfg)
	if len(groups) == 0 {
		t.Fatal("no groups")
	}
	for _, g := range groups {
		for _, it := range g.Items {
			for _, secret := range []string{"hunter2", "0123456789"} {
				if strings.Contains(it.Value, secret) {
					t.Errorf("%s/%s leaks %q: %q", g.Name, it.Name, secret, it.Value)
				}
			}
		}
	}
}
