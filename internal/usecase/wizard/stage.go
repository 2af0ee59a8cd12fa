package wizard

import "strings"

// Stage — текущий шаг диалога.
type Stage string

const (
	StageFrequency       Stage = "FREQUENCY"
	StageCustomDays      Stage = "CUSTOM_DAYS"
	StageHourlyStart     Stage = "HOURLY_START"
	StageHourlyEnd       Stage = "HOURLY_END"
	StageHourlyDays      Stage = "HOURLY_DAYS"
	StageTime            Stage = "TIME"
	StageMultiMsg        Stage = "MULTI_MSG"
	StageAttachment      Stage = "ATTACHMENT"
	StageAttachmentFile  Stage = "ATTACHMENT_FILE"
	StageRepeatUntil     Stage = "REPEAT_UNTIL"
	StageRepeatUntilDate Stage = "REPEAT_UNTIL_DATE"
	StageDestination     Stage = "DESTINATION"
	StageUsernameInput   Stage = "USERNAME_INPUT"
	StageDestinationID   Stage = "DESTINATION_ID"
	StageEditSelect      Stage = "EDIT_SELECT"
	StageEditField       Stage = "EDIT_FIELD"
	StageEditValue       Stage = "EDIT_VALUE"
	StageDeleteSelect    Stage = "DELETE_SELECT"
)

// Подписи кнопок.
const (
	OptionNoAttachment  = "No attachment"
	OptionSendFile      = "Send photo/file"
	OptionNoEndDate     = "No end date"
	OptionSetEndDate    = "Set end date"
	OptionToMe          = "To Me"
	OptionToGroup       = "To Group"
	OptionToUsername    = "To Username"
	OptionSpecificChat  = "Specific Chat ID"
	CommandDone         = "/done"
	CommandCancel       = "/cancel"
	endDateClearKeyword = "none"
)

// ParseCommand возвращает команду в нижнем регистре без @имени бота
// или пустую строку, если текст не команда.
func ParseCommand(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	command := strings.Fields(text)[0]
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command)
}

var (
	destinationOptions = []string{OptionToMe, OptionToGroup, OptionToUsername, OptionSpecificChat}
	attachmentOptions  = []string{OptionNoAttachment, OptionSendFile}
	endDateOptions     = []string{OptionNoEndDate, OptionSetEndDate}
)
