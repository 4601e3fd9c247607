package notifier

import "encoding/json"

// adaptPayload builds the platform-specific JSON body and headers for
// trigger: a card shape for Feishu, markdown for WeChat, attachments for
// Slack, and a flat record for anything else (custom).
func adaptPayload(platform Platform, trigger Trigger) ([]byte, map[string]string) {
	switch platform {
	case PlatformFeishu:
		return feishuPayload(trigger)
	case PlatformWeChat:
		return wechatPayload(trigger)
	case PlatformSlack:
		return slackPayload(trigger)
	default:
		return customPayload(trigger)
	}
}

func feishuPayload(t Trigger) ([]byte, map[string]string) {
	body := map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title": map[string]string{"tag": "plain_text", "content": t.title()},
			},
			"elements": []map[string]any{
				{"tag": "div", "fields": flatten(t.fields())},
			},
		},
	}
	b, _ := json.Marshal(body)
	return b, map[string]string{}
}

func wechatPayload(t Trigger) ([]byte, map[string]string) {
	content := "**" + t.title() + "**\n"
	for k, v := range t.fields() {
		content += "> " + k + ": " + toString(v) + "\n"
	}
	body := map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]string{"content": content},
	}
	b, _ := json.Marshal(body)
	return b, map[string]string{}
}

func slackPayload(t Trigger) ([]byte, map[string]string) {
	var fields []map[string]string
	for k, v := range t.fields() {
		fields = append(fields, map[string]string{"title": k, "value": toString(v)})
	}
	body := map[string]any{
		"attachments": []map[string]any{
			{"title": t.title(), "fields": fields, "color": colorFor(t.Level())},
		},
	}
	b, _ := json.Marshal(body)
	return b, map[string]string{}
}

func customPayload(t Trigger) ([]byte, map[string]string) {
	record := map[string]any{"title": t.title(), "level": t.Level()}
	for k, v := range t.fields() {
		record[k] = v
	}
	b, _ := json.Marshal(record)
	return b, map[string]string{"X-MaxClaw-Notification": "1"}
}

func flatten(fields map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(fields))
	for k, v := range fields {
		out = append(out, map[string]any{"text": map[string]string{"tag": "lark_md", "content": k + ": " + toString(v)}})
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func colorFor(l Level) string {
	switch l {
	case LevelError:
		return "danger"
	case LevelWarning:
		return "warning"
	default:
		return "good"
	}
}
