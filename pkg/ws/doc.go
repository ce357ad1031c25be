// Package ws реализует ретранслятор широковещательных сообщений поверх WebSocket:
// любой клиент, прошедший рукопожатие, попадает в общую комнату и получает
// все текстовые и бинарные сообщения остальных участников.
//
// # Компоненты
//
//   - HandshakeHeaders / AcceptKey - заголовки ответа 101 по Sec-WebSocket-Key
//   - Registry - реестр активных сессий (Insert / Remove / ForEach)
//   - Keepalive - периодический пинг открытых сессий и удаление закрытых
//   - Dispatcher - маршрутизация кадров по opcode и рассылка остальным
//   - Server - точка входа: рукопожатие, приветствие, регистрация, чтение кадров
//
// # Сервер
//
//	server := ws.NewServer(ws.DefaultServerConfig())
//	go server.Run(ctx) // keepalive
//	http.ListenAndServe(ws.DefaultAddr, ws.NewRouter(server))
//
// # Клиент
//
//	client := ws.NewClient(ws.DefaultClientConfig("ws://localhost:1984/socket"))
//	client.Connect(ctx)
//	client.Send("hello")
//	for frame := range client.Messages() {
//	    fmt.Println(string(frame.Payload))
//	}
//
// # Жизненный цикл сессии
//
//  1. Сервер проверяет Sec-WebSocket-Key; при ошибке отвечает 400 и сессия не создаётся
//  2. gorilla/websocket выполняет upgrade, сессия получает фазу Negotiated
//  3. Отправляется приветствие; только после успешной отправки сессия становится Registered
//  4. Кадры сессии обрабатываются Dispatcher по порядку их получения
//  5. Закрытие, ошибка транспорта или проход keepalive удаляют сессию из реестра ровно один раз
package ws
