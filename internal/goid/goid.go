// Package goid 读取当前 goroutine 的 id。
//
// Go 没有公开的 goroutine 标识，这里解析 runtime.Stack 输出的首行
// "goroutine 123 [running]:"。只用于诊断与重入判断，不要用作业务主键。
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// Get 返回当前 goroutine 的 id，解析失败返回 0
func Get() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], prefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
