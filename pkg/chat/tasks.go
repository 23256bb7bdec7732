package chat

// ConvertMessageToTasks projects msg's nameId-bearing properties into one
// ChatMessageTask each, preserving property ordering. For a Response
// message every task carries the response's NextSchema.
func ConvertMessageToTasks(msg ChatMessage) []ChatMessageTask {
	var props []Property
	var nextSchema string
	switch {
	case msg.Response != nil:
		props = msg.Response.Properties
		nextSchema = msg.Response.NextSchema
	case msg.Request != nil:
		props = msg.Request.Properties
	default:
		return nil
	}

	var tasks []ChatMessageTask
	for _, p := range props {
		if p.NameID == "" {
			continue
		}
		tasks = append(tasks, ChatMessageTask{
			NameID:     p.NameID,
			Name:       p.Name,
			Value:      p.Value,
			NextSchema: nextSchema,
		})
	}
	return tasks
}
