// Package captcha — codegen.go генерирует код, картинку и варианты ответа.
package captcha

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"

	"github.com/steambap/captcha"
)

// charset — алфавит кода и ложных вариантов. Без похожих пар (0/O, 1/I),
// чтобы варианты на кнопках не путались визуально.
const charset = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// Generate рендерит картинку и возвращает код вместе с PNG.
func Generate(length, width, height int) (code string, png []byte, err error) {
	data, err := captcha.New(width, height, func(o *captcha.Options) {
		o.CharPreset = charset
		o.TextLength = length
		o.CurveNumber = 2
		o.Noise = 1.5
	})
	if err != nil {
		return "", nil, fmt.Errorf("ошибка генерации капчи: %w", err)
	}

	var buf bytes.Buffer
	if err := data.WriteImage(&buf); err != nil {
		return "", nil, fmt.Errorf("ошибка рендеринга картинки: %w", err)
	}
	return data.Text, buf.Bytes(), nil
}

// GenerateOptions строит набор вариантов ответа: верный код плюс ложные,
// уникальные без учёта регистра, в случайном порядке.
// Ложные варианты добираются повторной выборкой до нужного размера —
// кандидат, совпадающий с уже взятым (без учёта регистра), отбрасывается.
func GenerateOptions(code string, count int) []string {
	target := count
	if target < 2 {
		target = 2
	}

	options := make([]string, 0, target)
	options = append(options, code)

	for len(options) < target {
		candidate := randomCode(len(code))
		unique := true
		for _, opt := range options {
			if strings.EqualFold(opt, candidate) {
				unique = false
				break
			}
		}
		if unique {
			options = append(options, candidate)
		}
	}

	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}

func randomCode(length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(charset[rand.Intn(len(charset))])
	}
	return b.String()
}
