// Package metadata 实现元数据存储
//
// 按 Selector 缓存实体属性（昵称、头像、权限等），未命中时通过
// FetcherResolver 找到负责该平台的协议并拉取。
//
// 行为要点：
//   - 同一 Selector 与缺失属性集合的并发未命中只发起一次拉取
//   - 拉取失败后条目在 AbsentBackoff 内直接返回 types.ErrMetadataUnavailable
//   - 容量有限，超出时淘汰最久未访问的条目
//   - Invalidate 移除条目，MarkStale 保留数据但强制下次读取重新拉取
//   - 失效后完成的旧拉取不会把条目写回缓存
package metadata
