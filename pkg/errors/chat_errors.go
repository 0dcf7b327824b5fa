package errors

// 领域层预定义错误，service 返回它们，boundary 层按 Code 映射响应。
var (
	ErrUsernameTaken      = Conflict("username taken")
	ErrUserNotFound       = NotFound("user not found")
	ErrInvalidCredentials = Unauthenticated("invalid credentials")
	ErrInvalidToken       = Unauthenticated("invalid token")

	ErrSelfRequest      = Validation("cannot send a contact request to yourself")
	ErrAlreadyContact   = Conflict("already a contact")
	ErrRequestPending   = Conflict("a pending request to this user already exists")
	ErrRequestNotFound  = NotFound("contact request not found")
	ErrNotRecipient     = Forbidden("only the recipient may respond to a request")
	ErrAlreadyProcessed = Conflict("request already processed")

	ErrGroupNotFound      = NotFound("group not found")
	ErrNotGroupMember     = Forbidden("not a member of this group")
	ErrNotGroupCreator    = Forbidden("only the group creator may do this")
	ErrCreatorIrremovable = Forbidden("the group creator cannot be removed")

	ErrInvalidPayload  = Validation("invalid payload")
	ErrMessageNotFound = NotFound("message not found")
)
