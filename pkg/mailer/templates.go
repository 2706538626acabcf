package mailer

import (
	"fmt"
	"html"
)

// PasswordReset 重置密码邮件，链接 15 分钟有效
func PasswordReset(to, name, resetURL string) Message {
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + html.EscapeString(name)
	}
	body := fmt.Sprintf(
		`<p>%s,</p>`+
			`<p>You requested a password reset. Click the link below to set a new password:</p>`+
			`<p><a href="%s">Reset password</a></p>`+
			`<p>This link expires in 15 minutes. If you did not request this, you can ignore this email.</p>`,
		greeting, html.EscapeString(resetURL),
	)
	return Message{To: to, Subject: "Reset your TaskFlow password", HTML: body}
}

// TaskAssigned 任务指派通知
func TaskAssigned(to, name, taskTitle, projectName, assignedBy, taskURL string) Message {
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + html.EscapeString(name)
	}
	project := ""
	if projectName != "" {
		project = fmt.Sprintf(` in project <strong>%s</strong>`, html.EscapeString(projectName))
	}
	body := fmt.Sprintf(
		`<p>%s,</p>`+
			`<p>%s assigned you the task <strong>%s</strong>%s.</p>`+
			`<p><a href="%s">Open task</a></p>`,
		greeting, html.EscapeString(assignedBy), html.EscapeString(taskTitle), project, html.EscapeString(taskURL),
	)
	return Message{To: to, Subject: "New task assigned: " + taskTitle, HTML: body}
}
