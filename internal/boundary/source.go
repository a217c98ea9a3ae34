package boundary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"geofence-api/internal/geo"
)

// Source：边界几何来源（文件、数据库、Redis、内嵌常量均可）
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]*geo.Region, error)
}

// StaticSource：内存区域集合，用于测试与内嵌数据
type StaticSource struct {
	Regions []*geo.Region
}

func (s StaticSource) Name() string { return "static" }

func (s StaticSource) Fetch(ctx context.Context) ([]*geo.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]*geo.Region(nil), s.Regions...), nil
}

// 文档注释：从数据目录加载边界
// 背景：约定文件名 boundaries.json（区域数组）优先，否则扫描目录下全部 *.geojson；文件名作为裸几何的区域名。
// 约束：任一文件解析失败即整体失败，避免部分区域缺失导致用户被误拦截。
type DirSource struct {
	Dir string
}

func (s DirSource) Name() string { return "dir:" + s.Dir }

func (s DirSource) Fetch(ctx context.Context) ([]*geo.Region, error) {
	b0 := filepath.Join(s.Dir, "boundaries.json")
	if b, err := os.ReadFile(b0); err == nil {
		rs, err := ParseGeoJSON(b, "")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b0, err)
		}
		return rs, nil
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var out []*geo.Region
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".geojson") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fp := filepath.Join(s.Dir, name)
		b, err := os.ReadFile(fp)
		if err != nil {
			return nil, err
		}
		rs, err := ParseGeoJSON(b, strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fp, err)
		}
		out = append(out, rs...)
	}
	return out, nil
}

// 文档注释：多数据源并发拉取
// 背景：例如文件提供基础邦界、数据库提供运营方自定义区域；按声明顺序合并，后者覆盖同名区域。
// 约束：任一数据源失败即整体失败。
type MultiSource struct {
	Sources []Source
}

func (m MultiSource) Name() string {
	names := make([]string, 0, len(m.Sources))
	for _, s := range m.Sources {
		names = append(names, s.Name())
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m MultiSource) Fetch(ctx context.Context) ([]*geo.Region, error) {
	results := make([][]*geo.Region, len(m.Sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m.Sources {
		i, src := i, src
		g.Go(func() error {
			rs, err := src.Fetch(gctx)
			if err != nil {
				return fmt.Errorf("%s: %w", src.Name(), err)
			}
			results[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	idx := make(map[string]int)
	var out []*geo.Region
	for _, rs := range results {
		for _, r := range rs {
			k := key(r.Name)
			if i, ok := idx[k]; ok {
				out[i] = r
				continue
			}
			idx[k] = len(out)
			out = append(out, r)
		}
	}
	return out, nil
}

// RawBoundary：按区域存放的原始 GeoJSON（数据库行、Redis 哈希字段）
type RawBoundary struct {
	Name    string
	GeoJSON string
}

func parseRaw(rows []RawBoundary) ([]*geo.Region, error) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	out := make([]*geo.Region, 0, len(rows))
	for _, row := range rows {
		r, err := ParseGeometry(row.Name, []byte(row.GeoJSON))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
