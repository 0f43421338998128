// Package override 根据版本控制中的变更识别人工修改过的译文，生成受保护路径集合。
package override

import (
	"context"
	"strconv"

	"doctrans/internal/diag"
	"doctrans/pkg/contract"
)

// Detect 查询自 since 以来的变更路径，保留位于任一语言输出目录下的路径。
// 查询不可用时返回空集合并记录告警，不中断运行。
func Detect(ctx context.Context, vcs contract.ChangeLister, since, root string, langs []contract.Language, log *diag.Logger) contract.OverrideSet {
	set := contract.OverrideSet{}
	if vcs == nil {
		log.WarnWith("override", "vcs_unavailable", "no version control configured", "", "", nil)
		return set
	}
	timer := log.StartWithKV("override", "detect", "", "", map[string]string{"since": since})
	ch := vcs.ChangedPaths(ctx, since)
	if !ch.Available {
		log.WarnWith("override", "vcs_unavailable", "override detection skipped", "", "", map[string]string{"reason": ch.Reason})
		diag.IncOp("override", "detect", "skip")
		return set
	}
	for _, p := range ch.Paths {
		cp, err := contract.CanonicalPath(p)
		if err != nil {
			continue
		}
		rel, ok := contract.RelUnder(root, cp)
		if !ok {
			continue
		}
		for _, l := range langs {
			if contract.UnderDir(rel, l.Dir) {
				set[cp] = struct{}{}
				break
			}
		}
	}
	timer.Finish("override detected", int64(len(set)))
	diag.IncOp("override", "detect", "success")
	if len(set) > 0 {
		log.Info("override", "protected targets", map[string]string{"count": strconv.Itoa(len(set))})
	}
	return set
}
