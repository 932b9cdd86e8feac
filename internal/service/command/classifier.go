/**
 * 指令分类
 * @author: sun977
 * @date: 2025.10.21
 * @description: 把入站文本解析为类型化指令
 * @func: /exec > /join > /relay > Brain 委派，按首个词精确匹配
 */
package command

import (
	"strings"
	"unicode"

	"clownetagent/internal/core/model"
	modelComm "clownetagent/internal/model/client"
)

// 指令前缀
const (
	SigilExec  = "/exec"
	SigilJoin  = "/join"
	SigilRelay = "/relay"
)

// 用法提示
const (
	UsageExec  = "Usage: /exec <command>"
	UsageJoin  = "Usage: /join #room"
	UsageRelay = "Usage: /relay <target> <message>"
)

// Classify 解析一条指令文本
// 格式错误的 /join 和 /relay 返回 ValidationError，同时返回带 Kind 的指令便于回复
func Classify(content string) (model.Instruction, error) {
	sigil, rest := splitFirstWord(strings.TrimSpace(content))

	switch sigil {
	case SigilExec:
		raw := strings.TrimSpace(rest)
		if raw == "" {
			return model.Instruction{Kind: model.InstructionShellExec}, &modelComm.ValidationError{Usage: UsageExec, Reason: "missing command"}
		}
		return model.ShellExec(raw), nil

	case SigilJoin:
		room, _ := splitFirstWord(rest)
		if room == "" {
			return model.Instruction{Kind: model.InstructionJoinRoom}, &modelComm.ValidationError{Usage: UsageJoin, Reason: "missing room"}
		}
		if !strings.HasPrefix(room, "#") || len(room) == 1 {
			return model.Instruction{Kind: model.InstructionJoinRoom}, &modelComm.ValidationError{Usage: UsageJoin, Reason: "room must start with '#'"}
		}
		return model.JoinRoom(room), nil

	case SigilRelay:
		target, body := splitFirstWord(rest)
		body = strings.TrimSpace(body)
		if target == "" || body == "" {
			return model.Instruction{Kind: model.InstructionRelayMessage}, &modelComm.ValidationError{Usage: UsageRelay, Reason: "missing target or message"}
		}
		return model.RelayMessage(target, body), nil
	}

	return model.BrainDelegate(content), nil
}

// HasSigil 文本是否以指令前缀开头
func HasSigil(content string) bool {
	sigil, _ := splitFirstWord(strings.TrimSpace(content))
	switch sigil {
	case SigilExec, SigilJoin, SigilRelay:
		return true
	}
	return false
}

// splitFirstWord 拆出第一个词，rest 保留原样（只去掉分隔的空白）
func splitFirstWord(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimLeftFunc(s[idx:], unicode.IsSpace)
}
