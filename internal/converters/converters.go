package converters

import (
	"database/sql"

	"github.com/bwmarrin/discordgo"
	"github.com/mwaltman/guild-archiver/internal/model"
)

// Convert discord message to database message.
func MessageFromDiscord(m *discordgo.Message) *model.Message {
	// If the message is nil then return nil
	if m == nil {
		return nil
	}

	// Convert the last edit time
	var editedTS sql.NullInt64
	if m.EditedTimestamp != nil && !m.EditedTimestamp.IsZero() {
		editedTS = sql.NullInt64{
			Int64: m.EditedTimestamp.UTC().UnixMilli(),
			Valid: true,
		}
	}

	msg := &model.Message{
		ID:        model.MessageID(m.ID),
		ChannelID: model.ChannelID(m.ChannelID),
		Content:   m.Content,
		CreatedTS: m.Timestamp.UTC().UnixMilli(),
		EditedTS:  editedTS,
		Pinned:    m.Pinned,
	}

	if m.Author != nil {
		msg.AuthorID = model.MemberID(m.Author.ID)
		msg.Author = MemberFromDiscord(m.Author, m.Member)
	}

	// If the message is a reply
	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		msg.ReplyToID = model.MessageID(m.MessageReference.MessageID)
	}

	for _, attachment := range m.Attachments {
		if attachment == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, AttachmentFromDiscord(attachment, msg.ID))
	}

	return msg
}

// Convert discord attachment to database attachment.
func AttachmentFromDiscord(a *discordgo.MessageAttachment, messageID model.MessageID) model.Attachment {
	return model.Attachment{
		ID:          model.AttachmentID(a.ID),
		MessageID:   messageID,
		Filename:    a.Filename,
		URL:         a.URL,
		ContentType: a.ContentType,
		Size:        a.Size,
		Width:       a.Width,
		Height:      a.Height,
	}
}

// Convert discord user (with optional guild member info) to database member.
func MemberFromDiscord(u *discordgo.User, gm *discordgo.Member) *model.Member {
	if u == nil {
		return nil
	}

	member := &model.Member{
		ID:        model.MemberID(u.ID),
		Username:  u.Username,
		AvatarURL: u.AvatarURL(""),
		IsBot:     u.Bot,
	}

	// Prefer the guild nickname, fall back to the global display name.
	switch {
	case gm != nil && gm.Nick != "":
		member.DisplayName = gm.Nick
	case u.GlobalName != "":
		member.DisplayName = u.GlobalName
	}

	return member
}

// Convert discord channel to database channel.
func ChannelFromDiscord(c *discordgo.Channel) *model.Channel {
	if c == nil {
		return nil
	}

	return &model.Channel{
		ID:          model.ChannelID(c.ID),
		GuildID:     c.GuildID,
		ParentID:    model.ChannelID(c.ParentID),
		Name:        c.Name,
		Kind:        ChannelKindFromDiscord(c.Type),
		Topic:       c.Topic,
		LastMessage: model.MessageID(c.LastMessageID),
	}
}

// ChannelKindFromDiscord maps the platform channel type onto the archive's
// coarser kinds. Anything unrecognized is treated as a text channel.
func ChannelKindFromDiscord(t discordgo.ChannelType) model.ChannelKind {
	switch t {
	case discordgo.ChannelTypeGuildCategory:
		return model.ChannelKindCategory
	case discordgo.ChannelTypeGuildForum:
		return model.ChannelKindForum
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return model.ChannelKindThread
	default:
		return model.ChannelKindText
	}
}
