package tui

// i18n provides a simple internationalization system for the TUI.
// Supported locales: "en" (English, default), "zh" (Chinese).

var currentLocale = "en"

// SetLocale changes the active locale.
func SetLocale(locale string) {
	if _, ok := locales[locale]; ok {
		currentLocale = locale
	}
}

// CurrentLocale returns the active locale code.
func CurrentLocale() string {
	return currentLocale
}

// ToggleLocale switches between en and zh.
func ToggleLocale() {
	if currentLocale == "zh" {
		currentLocale = "en"
	} else {
		currentLocale = "zh"
	}
}

// T returns the translated string for the given key, falling back to English and
// then to the key itself.
func T(key string) string {
	if m, ok := locales[currentLocale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := enStrings[key]; ok {
		return v
	}
	return key
}

var locales = map[string]map[string]string{
	"zh": zhStrings,
	"en": enStrings,
}

var zhTabNames = []string{"正在播放", "会话", "日志"}
var enTabNames = []string{"Now Playing", "Session", "Logs"}

// TabNames returns tab names in the current locale.
func TabNames() []string {
	if currentLocale == "zh" {
		return zhTabNames
	}
	return enTabNames
}

var enStrings = map[string]string{
	"loading":          "Loading...",
	"initializing_tui": "Initializing...",
	"status_left":      " NowPlaying",
	"status_right":     "Tab: switch • L: language • q/Ctrl+C: quit ",

	"playing_waiting":    "Waiting for the first update",
	"playing_logged_out": "Not logged in to Spotify",
	"playing_help":       " [l] log in • [o] log out • [r] refresh • [c] copy link",
	"login_pending":      "Opening the Spotify login page",
	"login_url":          "If the browser did not open, visit:",
	"login_failed":       "Login could not start: %s",
	"logged_out":         "Logged out",
	"copied":             "Copied %s",
	"copy_failed":        "Copy failed: %s",
	"nothing_to_copy":    "Nothing to copy",
	"refreshing":         "Refreshing",

	"session_title":    "Session",
	"session_help":     " [r] refresh",
	"session_auth":     "Spotify",
	"session_polling":  "Polling",
	"session_visible":  "Visible",
	"session_viewers":  "Open pages",
	"session_interval": "Interval",
	"session_policy":   "Device policy",
	"session_store":    "Credential store",
	"session_server":   "Page",
	"bool_yes":         "yes",
	"bool_no":          "no",
	"not_set":          "(not set)",

	"logs_title":       "Logs",
	"logs_auto_scroll": "● AUTO-SCROLL",
	"logs_paused":      "○ PAUSED",
	"logs_filter":      "Filter",
	"logs_lines":       "Lines",
	"logs_help":        " [a] auto-scroll • [x] clear • [1] all [2] info+ [3] warn+ [4] error • [↑↓] scroll",
	"logs_waiting":     "Waiting for log output...",
}

var zhStrings = map[string]string{
	"loading":          "加载中...",
	"initializing_tui": "正在初始化...",
	"status_left":      " NowPlaying",
	"status_right":     "Tab: 切换 • L: 语言 • q/Ctrl+C: 退出 ",

	"playing_waiting":    "等待首次更新",
	"playing_logged_out": "尚未登录 Spotify",
	"playing_help":       " [l] 登录 • [o] 退出登录 • [r] 刷新 • [c] 复制链接",
	"login_pending":      "正在打开 Spotify 登录页面",
	"login_url":          "如果浏览器没有打开，请访问：",
	"login_failed":       "无法开始登录：%s",
	"logged_out":         "已退出登录",
	"copied":             "已复制 %s",
	"copy_failed":        "复制失败：%s",
	"nothing_to_copy":    "没有可复制的内容",
	"refreshing":         "正在刷新",

	"session_title":    "会话",
	"session_help":     " [r] 刷新",
	"session_auth":     "Spotify",
	"session_polling":  "轮询",
	"session_visible":  "可见",
	"session_viewers":  "打开的页面",
	"session_interval": "间隔",
	"session_policy":   "设备策略",
	"session_store":    "凭据存储",
	"session_server":   "页面",
	"bool_yes":         "是",
	"bool_no":          "否",
	"not_set":          "(未设置)",

	"logs_title":       "日志",
	"logs_auto_scroll": "● 自动滚动",
	"logs_paused":      "○ 已暂停",
	"logs_filter":      "过滤",
	"logs_lines":       "行数",
	"logs_help":        " [a] 自动滚动 • [x] 清除 • [1] 全部 [2] info+ [3] warn+ [4] error • [↑↓] 滚动",
	"logs_waiting":     "等待日志输出...",
}
