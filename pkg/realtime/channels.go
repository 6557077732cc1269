package realtime

import "fmt"

// Channel naming catalog. Every logical resource maps to exactly one name;
// two different resources must never collide, or their subscriptions would
// silently overwrite each other in the registry. Each feature area owns a
// distinct prefix.

// Feed

// FeedChannel names the campus-wide post feed.
func FeedChannel(campusID string) string {
	return fmt.Sprintf("feed:campus:%s", campusID)
}

// PostCommentsChannel names the comment stream under one post.
func PostCommentsChannel(postID string) string {
	return fmt.Sprintf("feed:post:%s:comments", postID)
}

// PostReactionsChannel names the reaction stream under one post.
func PostReactionsChannel(postID string) string {
	return fmt.Sprintf("feed:post:%s:reactions", postID)
}

// Messaging

// ConversationChannel names the message stream of one conversation.
func ConversationChannel(conversationID string) string {
	return fmt.Sprintf("messaging:conversation:%s", conversationID)
}

// InboxChannel names a user's conversation-list updates.
func InboxChannel(userID string) string {
	return fmt.Sprintf("messaging:inbox:%s", userID)
}

// Identity

// ProfileChannel names change events on one user's profile.
func ProfileChannel(userID string) string {
	return fmt.Sprintf("identity:profile:%s", userID)
}

// NotificationsChannel names a user's notification stream.
func NotificationsChannel(userID string) string {
	return fmt.Sprintf("identity:notifications:%s", userID)
}

// Skills

// SkillAssessmentChannel names a user's skill-analysis result stream.
func SkillAssessmentChannel(userID string) string {
	return fmt.Sprintf("skills:assessments:%s", userID)
}

// Admin

// AdminReportsChannel names the moderation report queue for a campus.
func AdminReportsChannel(campusID string) string {
	return fmt.Sprintf("admin:reports:%s", campusID)
}

// AdminAuditChannel names the global admin audit stream.
func AdminAuditChannel() string {
	return "admin:audit"
}
