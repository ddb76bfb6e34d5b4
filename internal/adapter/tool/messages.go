package tool

// User-visible tool output. The completion service reads these verbatim.
const (
	weatherDescription  = "서울의 현재 날씨를 조회합니다."
	exchangeDescription = "원화 기준 달러의 현재 환율을 조회합니다."

	weatherFormat  = "현재 %s의 온도는 %s°C 입니다."
	weatherFailure = "날씨 정보를 가져오는 데 실패했습니다."

	exchangeFormat  = "현재 원-달러 환율은 1달러당 %s원 입니다."
	exchangeUnknown = "알 수 없음"
	exchangeFailure = "환율 정보를 가져오는 데 실패했습니다."

	invalidArgsFormat = "잘못된 인자입니다: %s"
)
