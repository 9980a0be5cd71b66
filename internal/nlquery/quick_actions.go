package nlquery

// QuickAction is a predefined request that bypasses text parsing.
type QuickAction struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Request Request `json:"request"`
}

var quickActions = []QuickAction{
	{Name: "last-30min", Label: "Last 30 min", Request: Request{Keywords: "", TimeWindowMinutes: 30}},
	{Name: "errors", Label: "Find Errors", Request: Request{Keywords: "ERROR", TimeWindowMinutes: 60}},
	{Name: "warnings", Label: "Warnings", Request: Request{Keywords: "WARNING", TimeWindowMinutes: 60}},
	{Name: "critical", Label: "Critical", Request: Request{Keywords: "CRITICAL OR FATAL", TimeWindowMinutes: 120}},
}

// QuickActions lists the shortcuts in display order.
func QuickActions() []QuickAction {
	return append([]QuickAction(nil), quickActions...)
}

// LookupQuickAction returns the request bound to name.
func LookupQuickAction(name string) (Request, bool) {
	for _, qa := range quickActions {
		if qa.Name == name {
			return qa.Request, true
		}
	}
	return Request{}, false
}
