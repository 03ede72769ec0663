package flow

// Field names used in Collected maps. The vault's field codec decides
// which of these become ciphertext.
const (
	FieldServiceName = "service_name"
	FieldUsername    = "username"
	FieldSecret      = "secret"
	FieldTitle       = "title"
	FieldContent     = "content"
	FieldPriority    = "priority"
	FieldDueDate     = "due_date"
	FieldFileName    = "file_name"
	FieldDescription = "description"
	FieldTags        = "tags"

	stepConfirm = "confirm"

	confirmYes = "yes"
	confirmNo  = "no"
)

var definitions = map[Kind]*Definition{
	KindAddPassword: {
		Kind: KindAddPassword,
		Steps: []Step{
			{Name: FieldServiceName, Prompt: "What service is this password for?", Validate: validateServiceName},
			{Name: FieldUsername, Prompt: "Username or login (or 'skip'):", Optional: true, Validate: validateUsername},
			{Name: FieldSecret, Prompt: "Send the password to store:", Validate: validateSecretValue},
			{Name: FieldTags, Prompt: "Tags, e.g. #work #mail (or 'skip'):", Optional: true, Validate: validateTags},
			{Name: stepConfirm, Prompt: "Save this password? (yes/no)", Validate: validateConfirm},
		},
	},
	KindAddTask: {
		Kind: KindAddTask,
		Steps: []Step{
			{Name: FieldTitle, Prompt: "Short task title:", Validate: validateTaskTitle},
			{Name: FieldContent, Prompt: "Describe the task:", Validate: validateTaskContent},
			{Name: FieldPriority, Prompt: "Priority (low/medium/high):", Validate: validatePriority},
			{Name: FieldDueDate, Prompt: "Due date YYYY-MM-DD (or 'skip'):", Optional: true, Validate: validateDueDate},
			{Name: FieldTags, Prompt: "Tags (or 'skip'):", Optional: true, Validate: validateTags},
			{Name: stepConfirm, Prompt: "Save this task? (yes/no)", Validate: validateConfirm},
		},
	},
	KindAddFile: {
		Kind: KindAddFile,
		Steps: []Step{
			{Name: FieldFileName, Prompt: "File name:", Validate: validateFileName},
			{Name: FieldDescription, Prompt: "Describe the file contents:", Validate: validateDescription},
			{Name: FieldTags, Prompt: "Tags (or 'skip'):", Optional: true, Validate: validateTags},
			{Name: stepConfirm, Prompt: "Save this file record? (yes/no)", Validate: validateConfirm},
		},
	},
}

// Lookup returns the definition for a flow kind.
func Lookup(kind Kind) (*Definition, bool) {
	def, ok := definitions[kind]
	return def, ok
}
