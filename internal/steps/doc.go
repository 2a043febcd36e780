// Package steps — библиотека действий шагов конвейера.
//
// Действие (Action) — единица работы шага: shell-команда, получение
// исходников, установка тулчейна, загрузка артефакта, выгрузка отчёта
// о покрытии, публикация в реестр, HTTP-запрос, ожидание.
//
// # Архитектура
//
// Каждое действие реализует интерфейс Action и регистрируется
// в Registry под уникальным типом. Раннер находит действие по типу
// шага и вызывает Execute с отрендеренными параметрами, окружением
// и разрешёнными секретами.
//
// Стандартный набор действий собирает DefaultRegistry:
//
//	command          shell-команда шага run
//	checkout         получение исходного кода
//	setup-toolchain  установка версии тулчейна
//	fetch-binary     загрузка внешнего инструмента
//	coverage-upload  выгрузка отчёта о покрытии
//	registry-publish публикация артефакта в реестр
//	http             произвольный HTTP-запрос
//	wait             пауза между шагами
//
// # Секреты
//
// Действия, которым нужны учётные данные (coverage-upload,
// registry-publish), получают их только через Request.Secrets.
// Отсутствующий или пустой секрет — ошибка действия: запрос
// с пустыми учётными данными никогда не отправляется, значения
// секретов никогда не попадают в Output.
//
// # Расширение
//
// Новое действие регистрируется в реестре воркера:
//
//	registry.Register(myAction)
package steps
