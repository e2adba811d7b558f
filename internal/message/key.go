package message

import "strconv"

// DedupKey identifies the logical message a delivery belongs to. Redeliveries
// of the same message yield the same key.
//
// Normal messages use the platform MsgId. Events carry no id, so they fall back
// to sender and CreateTime; two distinct events from one user in the same
// second share a key.
func DedupKey(req Request) string {
	switch m := req.(type) {
	case *Text:
		return formatID(m.MsgID)
	case *Image:
		return formatID(m.MsgID)
	case *Voice:
		return formatID(m.MsgID)
	case *Video:
		return formatID(m.MsgID)
	case *ShortVideo:
		return formatID(m.MsgID)
	case *Location:
		return formatID(m.MsgID)
	case *Link:
		return formatID(m.MsgID)
	case *UnknownMessage:
		if m.RawMsgID != "" {
			return m.RawMsgID
		}
	}
	h := req.Head()
	return h.FromUser + ":" + strconv.FormatInt(h.CreatedAt, 10)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
