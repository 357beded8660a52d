package domain

import "strings"

// ToolIDSeparator joins a backend server id and an origin tool name into the
// composite id the wire protocol sees as the tool name.
const ToolIDSeparator = "::"

// JoinToolID builds the composite id for a backend tool.
func JoinToolID(backendServerID, toolName string) string {
	return backendServerID + ToolIDSeparator + toolName
}

// SplitToolID recovers (backendServerId, originToolName) from a composite id.
// Only the first separator splits, so origin names containing "::" still
// route to the correct backend.
func SplitToolID(compositeID string) (backendServerID, toolName string, err error) {
	before, after, found := strings.Cut(compositeID, ToolIDSeparator)
	if !found || before == "" || after == "" {
		return "", "", ErrInvalidToolID
	}
	return before, after, nil
}
