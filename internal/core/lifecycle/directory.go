package lifecycle

import (
	"sort"
	"sync"

	pkgif "github.com/dep2p/go-chatcore/pkg/interfaces"
	"github.com/dep2p/go-chatcore/pkg/types"
)

// Directory 活跃协议目录
//
// 服务进入 Active 时加入，离开 Active 时移除。同一平台有多个活跃服务时
// 按进入 Active 的先后取最早的一个；关系解析按账号选择服务。元数据存储与
// 关系解析都通过它找到协议。
type Directory struct {
	mu        sync.RWMutex
	platforms map[string][]directoryEntry
}

type directoryEntry struct {
	serviceID string
	account   string
	protocol  pkgif.Protocol
}

// NewDirectory 创建目录
func NewDirectory() *Directory {
	return &Directory{
		platforms: make(map[string][]directoryEntry),
	}
}

var _ pkgif.ProtocolDirectory = (*Directory)(nil)

// Resolve 返回平台的活跃协议与提供它的服务 ID
func (d *Directory) Resolve(platform string) (pkgif.Protocol, string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries := d.platforms[platform]
	if len(entries) == 0 {
		return nil, "", false
	}
	return entries[0].protocol, entries[0].serviceID, true
}

// ResolveAccount 返回代表 self 账号的活跃服务
func (d *Directory) ResolveAccount(self types.Selector) (pkgif.Protocol, string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries := d.platforms[self.Platform()]
	if account, ok := self.Get(pkgif.AccountSetting); ok {
		for _, e := range entries {
			if e.account == account || e.serviceID == account {
				return e.protocol, e.serviceID, true
			}
		}
	}
	// 多个服务时无法判断由谁代表 self
	if len(entries) != 1 {
		return nil, "", false
	}
	return entries[0].protocol, entries[0].serviceID, true
}

// ResolveFetcher 按 Selector 的平台找到元数据来源
func (d *Directory) ResolveFetcher(sel types.Selector) (pkgif.Fetcher, bool) {
	p, _, ok := d.Resolve(sel.Platform())
	if !ok {
		return nil, false
	}
	return p, true
}

// Platforms 返回所有活跃平台
func (d *Directory) Platforms() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.platforms))
	for p := range d.platforms {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// add 服务进入 Active，account 为服务声明的账号，可以为空
func (d *Directory) add(serviceID, account string, p pkgif.Protocol) {
	d.mu.Lock()
	defer d.mu.Unlock()

	platform := p.Name()
	for _, e := range d.platforms[platform] {
		if e.serviceID == serviceID {
			return
		}
	}
	d.platforms[platform] = append(d.platforms[platform], directoryEntry{
		serviceID: serviceID,
		account:   account,
		protocol:  p,
	})
}

// remove 服务离开 Active
func (d *Directory) remove(serviceID string, p pkgif.Protocol) {
	d.mu.Lock()
	defer d.mu.Unlock()

	platform := p.Name()
	entries := d.platforms[platform]
	for i, e := range entries {
		if e.serviceID == serviceID {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(d.platforms, platform)
		return
	}
	d.platforms[platform] = entries
}
