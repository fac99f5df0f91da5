package winmsg

// HandlerFunc serves one request and returns the response payload.
// Return c.Bind(...) decoded input however you like; the returned value is
// marshalled for the wire ([]byte / json.RawMessage pass through as-is).
type HandlerFunc func(c *Context) (any, error)
