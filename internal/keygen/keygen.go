// Package keygen 将卡密格式模板编译为生成器。
//
// 模板由字面字符和通配符 `*` 组成，每个通配符在生成时替换为
// 一个从固定字母表中均匀抽取的随机字符。
package keygen

import (
	"crypto/rand"
	"errors"
	"strings"
)

// ErrInvalidFormat 模板不含任何通配符
var ErrInvalidFormat = errors.New("invalid key format: must contain at least one wildcard (*)")

// Alphabet 通配符字符集：大小写字母 + 数字
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Wildcard 模板通配符
const Wildcard = '*'

// Generator 按模板生成卡密字符串
type Generator struct {
	format    string
	wildcards int
}

// Compile 校验模板并返回生成器
func Compile(format string) (*Generator, error) {
	wildcards := strings.Count(format, string(Wildcard))
	if wildcards == 0 {
		return nil, ErrInvalidFormat
	}
	return &Generator{format: format, wildcards: wildcards}, nil
}

// Format 返回编译时的模板
func (g *Generator) Format() string {
	return g.format
}

// Wildcards 返回模板中的通配符数量
func (g *Generator) Wildcards() int {
	return g.wildcards
}

// Next 生成一个符合模板的卡密
//
// 每个通配符独立抽取，密码学不可预测；字面字符原样保留。
func (g *Generator) Next() (string, error) {
	var b strings.Builder
	b.Grow(len(g.format))

	for _, ch := range g.format {
		if ch != Wildcard {
			b.WriteRune(ch)
			continue
		}
		c, err := randomChar()
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

// randomChar 从字母表中均匀抽取一个字符
//
// 拒绝采样消除模偏差：62 不整除 256，直接取模会偏向前 8 个字符。
func randomChar() (byte, error) {
	limit := byte(256 - (256 % len(Alphabet))) // 248
	buf := make([]byte, 1)
	for {
		if _, err := rand.Read(buf); err != nil {
			return 0, err
		}
		if buf[0] < limit {
			return Alphabet[int(buf[0])%len(Alphabet)], nil
		}
	}
}
