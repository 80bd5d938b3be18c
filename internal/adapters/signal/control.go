package signal

func (ctl *SignalWSController) handlePing(req *request) {
	ctl.sendJSON(req.sid, req.conn, Message{
		Type:  TypePong,
		ReqID: req.msg.ReqID,
	})
}
