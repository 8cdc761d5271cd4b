// Package captcha управляет проверкой новых участников: выдаёт капчу,
// принимает ответы, ведёт обратный отсчёт и эскалирует до бана.
// models.go описывает структуры данных реестра ожидающих проверок.
package captcha

// Key однозначно определяет одну активную капчу: (чат, пользователь).
// Для одного ключа никогда не существует двух капч одновременно.
type Key struct {
	ChatID int64
	UserID int64
}

// Pending — запись о выданной и ещё не решённой капче.
// Запись принадлежит реестру; снаружи она видна только как снимок-копия.
type Pending struct {
	// Текущий верный код. Перегенерируется после неверного ответа
	// (но не по тику таймера).
	Code string
	// ID сообщения с картинкой — нужен, чтобы потом его удалить/обновить
	MessageID int
	// Варианты ответа: перемешанные, уникальные без учёта регистра,
	// верный код встречается ровно один раз
	Options []string
	// Попытки: AttemptsLeft только убывает, стартует с AttemptsTotal
	AttemptsLeft  int
	AttemptsTotal int
	// Сколько секунд осталось до эскалации; убывает с фиксированным шагом
	RemainingSecs int
	// Снимок отображаемых данных на момент выдачи — чтобы уведомления
	// и журнал не требовали повторного запроса к Telegram после бана
	UserDisplay   string
	UserFirstName string
	UserName      string
	UserUsername  string
	ChatTitle     string
	ChatUsername  string
}

// Result — исход проверки ответа.
type Result int

const (
	// ResultNoPending — капчи для ключа нет; текст не относится к проверке
	ResultNoPending Result = iota
	// ResultWrong — ответ неверный, попытки ещё остались
	ResultWrong
	// ResultExhausted — ответ неверный и попытки кончились; запись снята
	ResultExhausted
	// ResultVerified — ответ верный; запись снята
	ResultVerified
)
