package main

import (
	"os"
	"testing"
)

// testChdir 等价于 Go 1.24 的 t.Chdir：切换工作目录并在测试结束时恢复。
func testChdir(t testing.TB, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			panic("testChdir: restore working directory: " + err.Error())
		}
	})
}
