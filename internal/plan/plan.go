// Package plan 决定每个 (文档, 语言) 作业是翻译还是跳过。
package plan

import "doctrans/pkg/contract"

// Decide 按优先级给出决策：
//  1. 目标受保护 → SkipProtected（force 也不覆盖）；
//  2. 目标已存在且未 force → SkipExisting；
//  3. 其余 → Translate。
func Decide(target string, overrides contract.OverrideSet, force, exists bool) contract.Decision {
	if overrides.Has(target) {
		return contract.SkipProtected
	}
	if exists && !force {
		return contract.SkipExisting
	}
	return contract.Translate
}

// Build 以文档为主序、语言为次序生成作业列表；Seq 按生成顺序递增。
// 受保护的目标不查询文件系统。
func Build(root string, docs []contract.Document, langs []contract.Language, overrides contract.OverrideSet, force bool, fs contract.FileSystem) []contract.Job {
	jobs := make([]contract.Job, 0, len(docs)*len(langs))
	for _, d := range docs {
		for _, l := range langs {
			target := contract.TargetPath(root, l, d.Rel)
			dec := contract.SkipProtected
			if !overrides.Has(target) {
				dec = Decide(target, overrides, force, fs.Exists(target))
			}
			jobs = append(jobs, contract.Job{
				Seq:      len(jobs),
				Doc:      d,
				Lang:     l,
				Target:   target,
				Decision: dec,
			})
		}
	}
	return jobs
}

// Counts 统计各决策数量。
func Counts(jobs []contract.Job) (translate, protected, existing int) {
	for _, j := range jobs {
		switch j.Decision {
		case contract.Translate:
			translate++
		case contract.SkipProtected:
			protected++
		case contract.SkipExisting:
			existing++
		}
	}
	return
}
