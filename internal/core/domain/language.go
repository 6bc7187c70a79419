package domain

import (
	"strings"
	"unicode"
)

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageChinese Language = "zh"
)

// Query is the per-request user input.
type Query struct {
	Text     string   `json:"text"`
	Language Language `json:"language"`
}

func NewQuery(text string) Query {
	text = strings.TrimSpace(text)
	return Query{Text: text, Language: DetectLanguage(text)}
}

// DetectLanguage returns zh when text contains a Han character and en otherwise.
func DetectLanguage(text string) Language {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return LanguageChinese
		}
	}
	return LanguageEnglish
}

type MessageKey string

const (
	MessageSuccess         MessageKey = "success"
	MessageDecline         MessageKey = "decline"
	MessageNoMatch         MessageKey = "no_match"
	MessageEmptyQuestion   MessageKey = "empty_question"
	MessageInvalidBody     MessageKey = "invalid_body"
	MessageIndexNotReady   MessageKey = "index_not_ready"
	MessageGenerationError MessageKey = "generation_error"
	MessageInternalError   MessageKey = "internal_error"
	MessageOverloaded      MessageKey = "overloaded"
	MessageRateLimited     MessageKey = "rate_limited"
	MessageTemporary       MessageKey = "temporary"
)

var messages = map[MessageKey]map[Language]string{
	MessageSuccess: {
		LanguageEnglish: "success",
		LanguageChinese: "成功",
	},
	MessageDecline: {
		LanguageEnglish: "I'm sorry, I can't help with that. I'm a fashion recommender, so please ask about clothing or accessories you'd like suggestions for.",
		LanguageChinese: "抱歉，我无法帮助您解决这个问题。我是一个时尚推荐助手，请询问与服装或配饰推荐相关的问题。",
	},
	MessageNoMatch: {
		LanguageEnglish: "No recommendation found for your request. Try describing the item differently or relaxing price, size or color constraints.",
		LanguageChinese: "没有找到适合您需求的推荐。请尝试换一种描述方式，或放宽价格、尺码、颜色等条件。",
	},
	MessageEmptyQuestion: {
		LanguageEnglish: "invalid request: question must not be empty",
		LanguageChinese: "请求参数错误：question不能为空",
	},
	MessageInvalidBody: {
		LanguageEnglish: "invalid request: body must be a JSON object with a question field",
		LanguageChinese: "请求参数错误：请求体必须是包含question字段的JSON",
	},
	MessageIndexNotReady: {
		LanguageEnglish: "recommendation index is not available",
		LanguageChinese: "推荐索引不可用",
	},
	MessageGenerationError: {
		LanguageEnglish: "failed to generate a recommendation, please retry later",
		LanguageChinese: "生成推荐失败，请稍后重试",
	},
	MessageInternalError: {
		LanguageEnglish: "internal server error",
		LanguageChinese: "服务器内部错误",
	},
	MessageOverloaded: {
		LanguageEnglish: "server is overloaded, please retry",
		LanguageChinese: "服务繁忙，请稍后重试",
	},
	MessageRateLimited: {
		LanguageEnglish: "rate limit exceeded",
		LanguageChinese: "请求过于频繁",
	},
	MessageTemporary: {
		LanguageEnglish: "a backend is temporarily unavailable, please retry",
		LanguageChinese: "后端服务暂时不可用，请稍后重试",
	},
}

// Message returns the localized text for key, falling back to English.
func Message(key MessageKey, lang Language) string {
	byLang, ok := messages[key]
	if !ok {
		return string(key)
	}
	if msg, ok := byLang[lang]; ok {
		return msg
	}
	return byLang[LanguageEnglish]
}
