package lifecycle

import (
	"fmt"
	"strings"

	"github.com/dep2p/go-chatcore/pkg/types"
)

// ============================================================================
// 依赖图
// ============================================================================

// validateGraph 检查依赖图并返回每个服务的层级
//
// 没有依赖的服务层级为 0，其余为所有依赖的最大层级加一。
// order 为注册顺序，保证错误信息与层级计算稳定。
func validateGraph(order []string, deps map[string][]string) (map[string]int, error) {
	for _, id := range order {
		for _, dep := range deps[id] {
			if _, ok := deps[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", types.ErrUnknownDependency, id, dep)
			}
			if dep == id {
				return nil, fmt.Errorf("%w: %s -> %s", types.ErrDependencyCycle, id, id)
			}
		}
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(order))
	depth := make(map[string]int, len(order))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case grey:
			// 从栈中找出环的起点
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, stack[start:]...), id)
			return fmt.Errorf("%w: %s", types.ErrDependencyCycle, strings.Join(cycle, " -> "))
		}

		color[id] = grey
		stack = append(stack, id)
		d := 0
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		depth[id] = d
		return nil
	}

	for _, id := range order {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return depth, nil
}

// shutdownLayers 返回关闭顺序：层级从高到低，同层保持注册顺序
func shutdownLayers(order []string, depth map[string]int) [][]string {
	maxDepth := -1
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	layers := make([][]string, 0, maxDepth+1)
	for d := maxDepth; d >= 0; d-- {
		var layer []string
		for _, id := range order {
			if depth[id] == d {
				layer = append(layer, id)
			}
		}
		if len(layer) > 0 {
			layers = append(layers, layer)
		}
	}
	return layers
}
