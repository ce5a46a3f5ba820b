// Package interfaces 定义 chatcore 公共接口
//
// 本文件定义元数据存储接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-chatcore/pkg/types"
)

// MetadataStore 按 Selector 缓存实体属性，未命中时向所属协议拉取
type MetadataStore interface {
	// Get 读取属性，names 为空表示全部
	//
	// 同一 (Selector, 缺失属性集合) 并发未命中时只发起一次拉取。
	// 拉取失败后在退避期内直接返回 types.ErrMetadataUnavailable。
	Get(ctx context.Context, sel types.Selector, names ...string) (types.Attributes, error)

	// Put 写入属性
	Put(sel types.Selector, attrs types.Attributes)

	// Invalidate 移除条目
	Invalidate(sel types.Selector)

	// InvalidatePrefix 移除前缀下的所有条目，返回移除数量
	InvalidatePrefix(prefix types.Selector) int

	// MarkStale 标记条目过期，保留数据但下次读取时重新拉取
	MarkStale(sel types.Selector)

	// Freshness 返回条目的新鲜度
	Freshness(sel types.Selector) types.Freshness

	// Len 条目数量
	Len() int
}

// Fetcher 元数据来源
type Fetcher interface {
	Fetch(ctx context.Context, sel types.Selector, names []string) (types.Attributes, error)
}

// FetcherResolver 为 Selector 找到负责的元数据来源
type FetcherResolver interface {
	ResolveFetcher(sel types.Selector) (Fetcher, bool)
}
