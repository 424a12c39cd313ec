package model

import (
	"database/sql"
	"encoding/gob"
)

func InitHashFunction() {
	// Register types for gob serialization
	gob.Register(sql.NullInt64{})
	gob.Register(MessageID(""))
	gob.Register(ChannelID(""))
	gob.Register(MemberID(""))
}
