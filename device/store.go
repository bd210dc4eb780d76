package device

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/AkihiroUeda35/zenoh-rpc-go/service"
	"github.com/pkg/errors"
)

// CredentialStore 网络凭据的 JSON 文件存储。
// path 为空时只保留在内存中
type CredentialStore struct {
	mu   sync.Mutex
	path string
	cur  *service.NetworkSettings
}

func NewCredentialStore(path string) *CredentialStore {
	cs := &CredentialStore{path: path}
	if path != "" {
		if settings, err := readSettings(path); err == nil {
			cs.cur = settings
		}
	}
	return cs
}

func (cs *CredentialStore) Save(settings *service.NetworkSettings) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.cur = settings
	if cs.path == "" {
		return nil
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "marshal network settings")
	}
	if err := os.WriteFile(cs.path, data, 0o600); err != nil {
		return errors.Wrap(err, "write credential file")
	}
	return nil
}

// Load 返回已保存的凭据，未配置时返回 nil
func (cs *CredentialStore) Load() *service.NetworkSettings {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cur
}

func readSettings(path string) (*service.NetworkSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var settings service.NetworkSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, errors.Wrap(err, "parse credential file")
	}
	return &settings, nil
}
