package config

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	zkSessionTimeout = 10 * time.Second
	// zkWatchRetryDelay paces re-arming after a failed GetW so a flapping
	// ensemble does not turn the watch loop into a busy spin.
	zkWatchRetryDelay = 2 * time.Second
)

// ZookeeperProvider reads the configuration document from a single znode.
// It satisfies koanf's Provider contract through ReadBytes and feeds the
// loader's watch machinery through Watch.
type ZookeeperProvider struct {
	conn *zk.Conn
	path string
}

func NewZookeeperProvider(endpoints []string, path string) (*ZookeeperProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("zookeeper endpoints are required")
	}
	if path == "" {
		return nil, fmt.Errorf("zookeeper path is required")
	}

	conn, _, err := zk.Connect(endpoints, zkSessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to zookeeper: %w", err)
	}
	return &ZookeeperProvider{conn: conn, path: path}, nil
}

func (p *ZookeeperProvider) ReadBytes() ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("reading zookeeper node %s: %w", p.path, err)
	}
	return data, nil
}

// Read is unsupported; the loader always parses the raw bytes from
// ReadBytes through a parser.
func (p *ZookeeperProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("zookeeper provider does not support this method")
}

// Watch re-arms a one-shot GetW watch in a loop, delivering the znode's new
// bytes to callback on every data change. It returns once the node is
// deleted or the session stops watching; both are reported to the callback
// so the loader can log why live reload ended.
func (p *ZookeeperProvider) Watch(callback func(event interface{}, err error)) error {
	for {
		data, _, events, err := p.conn.GetW(p.path)
		if err != nil {
			callback(nil, fmt.Errorf("watching zookeeper node %s: %w", p.path, err))
			time.Sleep(zkWatchRetryDelay)
			continue
		}

		switch ev := <-events; ev.Type {
		case zk.EventNodeDataChanged:
			callback(data, nil)
		case zk.EventNodeDeleted:
			callback(nil, fmt.Errorf("zookeeper node %s was deleted", p.path))
			return nil
		case zk.EventNotWatching:
			callback(nil, fmt.Errorf("zookeeper watch on %s lost", p.path))
			return nil
		}
	}
}

func (p *ZookeeperProvider) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
