// Package fsm предоставляет табличное описание переходов конечного автомата.
package fsm

// Table таблица разрешенных переходов между состояниями.
// Таблица фиксируется при создании и далее только читается, поэтому
// безопасна для конкурентного использования без блокировок
type Table[S comparable] struct {
	transitions map[S]map[S]struct{}
}

// NewTable создает таблицу переходов из списка пар from -> to
func NewTable[S comparable](pairs map[S][]S) *Table[S] {
	transitions := make(map[S]map[S]struct{}, len(pairs))
	for from, targets := range pairs {
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		transitions[from] = set
	}
	return &Table[S]{transitions: transitions}
}

// Can сообщает, разрешен ли переход from -> to
func (t *Table[S]) Can(from, to S) bool {
	targets, ok := t.transitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Targets возвращает все состояния, достижимые из from за один переход
func (t *Table[S]) Targets(from S) []S {
	targets, ok := t.transitions[from]
	if !ok {
		return nil
	}
	result := make([]S, 0, len(targets))
	for to := range targets {
		result = append(result, to)
	}
	return result
}

// Terminal сообщает, является ли состояние терминальным (нет исходящих переходов)
func (t *Table[S]) Terminal(state S) bool {
	targets, ok := t.transitions[state]
	return !ok || len(targets) == 0
}
