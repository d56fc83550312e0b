// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hostconfig

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

// zookeeperProvider is a koanf provider backed by a single znode: it reads
// the node's bytes as a YAML-encoded config blob, and can watch the node
// for changes so a remote-config source can re-resolve without a restart.
type zookeeperProvider struct {
	conn *zk.Conn
	path string
}

func newZookeeperProvider(endpoints []string, path string) (*zookeeperProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("hostconfig: zookeeper endpoints are required")
	}
	if path == "" {
		return nil, fmt.Errorf("hostconfig: zookeeper path is required")
	}

	conn, _, err := zk.Connect(endpoints, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("hostconfig: failed to connect to zookeeper: %w", err)
	}

	return &zookeeperProvider{conn: conn, path: path}, nil
}

// ReadBytes satisfies koanf.Provider.
func (p *zookeeperProvider) ReadBytes() ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("hostconfig: failed to read zookeeper path %s: %w", p.path, err)
	}
	return data, nil
}

// Read satisfies koanf.Provider for providers that don't support raw byte
// maps; zookeeper's payload is always parsed from bytes instead.
func (p *zookeeperProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("hostconfig: zookeeper provider only supports ReadBytes")
}

// Watch blocks, invoking callback every time the znode's data changes or
// the watch is lost. Used by RemoteSource.Watch to trigger re-resolution.
func (p *zookeeperProvider) Watch(callback func(event interface{}, err error)) error {
	for {
		data, _, eventCh, err := p.conn.GetW(p.path)
		if err != nil {
			callback(nil, fmt.Errorf("hostconfig: failed to watch zookeeper path %s: %w", p.path, err))
			return err
		}

		event := <-eventCh
		switch event.Type {
		case zk.EventNodeDataChanged:
			callback(data, nil)
		case zk.EventNodeDeleted:
			callback(nil, fmt.Errorf("hostconfig: zookeeper node %s was deleted", p.path))
			return nil
		case zk.EventNotWatching:
			callback(nil, fmt.Errorf("hostconfig: zookeeper watch lost for path %s", p.path))
			return nil
		}
	}
}

func (p *zookeeperProvider) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
